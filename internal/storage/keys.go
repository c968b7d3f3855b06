package storage

import "fmt"

// IconKey 返回图标对象键：{owner}/{resume}/{filename}。
func IconKey(ownerID, resumeID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", ownerID, resumeID, filename)
}

// ThumbnailKey 返回缩略图对象键：{owner}/{resume}/thumbnail.png。
func ThumbnailKey(ownerID, resumeID string) string {
	return fmt.Sprintf("%s/%s/thumbnail.png", ownerID, resumeID)
}

// ResumePrefix 返回某份简历全部对象的公共前缀。
func ResumePrefix(ownerID, resumeID string) string {
	return fmt.Sprintf("%s/%s/", ownerID, resumeID)
}
