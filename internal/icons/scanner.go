package icons

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dutchcoders/go-clamd"
)

// ErrInfected 表示图标未通过病毒扫描。
var ErrInfected = errors.New("icon rejected by virus scan")

// Scanner 在上传前检查图标内容。
type Scanner interface {
	Scan(ctx context.Context, data []byte) error
}

// NopScanner 不做任何检查。
type NopScanner struct{}

func (NopScanner) Scan(context.Context, []byte) error { return nil }

// ClamdScanner 通过 clamd 的 INSTREAM 扫描图标。
type ClamdScanner struct {
	client *clamd.Clamd
}

// NewScanner 地址为空时返回 NopScanner。
func NewScanner(address string) Scanner {
	if address == "" {
		return NopScanner{}
	}
	return &ClamdScanner{client: clamd.NewClamd(address)}
}

func (s *ClamdScanner) Scan(ctx context.Context, data []byte) error {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(bytes.NewReader(data), abort)
	if err != nil {
		return fmt.Errorf("clamd scan: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil
			}
			if res.Status != clamd.RES_OK {
				return fmt.Errorf("%w: %s", ErrInfected, res.Description)
			}
		}
	}
}
