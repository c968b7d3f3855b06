package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"resumeforge/internal/apperr"
)

// Preferences 是返回给客户端的用户偏好。
type Preferences struct {
	UserID             string          `json:"user_id"`
	LastEditedResumeID *string         `json:"last_edited_resume_id"`
	Preferences        json.RawMessage `json:"preferences"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PreferencesInput 为更新请求；未给出的字段保持原值，空字符串清空最近编辑简历。
type PreferencesInput struct {
	LastEditedResumeID *string
	Preferences        json.RawMessage
}

// GetPreferences 读取偏好，首次读取时创建空行。
func (s *Service) GetPreferences(ctx context.Context, ownerID string) (Preferences, error) {
	row, err := s.store.GetPreferences(ctx, ownerID)
	if err != nil {
		return Preferences{}, err
	}
	return Preferences{
		UserID:             row.OwnerID,
		LastEditedResumeID: row.LastEditedResumeID,
		Preferences:        rawOrEmpty(row.Preferences),
		UpdatedAt:          row.UpdatedAt,
	}, nil
}

// SetPreferences 合并并写回偏好。行的 owner 始终是已认证主体。
func (s *Service) SetPreferences(ctx context.Context, ownerID string, in PreferencesInput) (Preferences, error) {
	if len(in.Preferences) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(in.Preferences, &obj); err != nil || obj == nil {
			return Preferences{}, apperr.Validation("preferences must be a JSON object")
		}
	}
	row, err := s.store.GetPreferences(ctx, ownerID)
	if err != nil {
		return Preferences{}, err
	}
	row.OwnerID = ownerID
	if in.LastEditedResumeID != nil {
		if id := strings.TrimSpace(*in.LastEditedResumeID); id != "" {
			row.LastEditedResumeID = &id
		} else {
			row.LastEditedResumeID = nil
		}
	}
	if len(in.Preferences) > 0 {
		row.Preferences = []byte(in.Preferences)
	}
	if err := s.store.UpsertPreferences(ctx, row); err != nil {
		return Preferences{}, err
	}
	return Preferences{
		UserID:             row.OwnerID,
		LastEditedResumeID: row.LastEditedResumeID,
		Preferences:        rawOrEmpty(row.Preferences),
		UpdatedAt:          row.UpdatedAt,
	}, nil
}

func rawOrEmpty(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}
