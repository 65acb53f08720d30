package utils

import (
	"crypto/rand"
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxGroupNameLen    = 64
	MaxDescriptionLen  = 500
	MaxCustomTitleLen  = 25
	MaxAnnouncementLen = 4096

	// InviteCodeBytes 邀请码熵（字节）
	InviteCodeBytes = 20
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

// ValidateID 验证用户/群组 ID 格式（1-64 个字符，字母数字开头）
func ValidateID(id string) bool {
	return idPattern.MatchString(id)
}

// NormalizeGroupName 去除首尾空白并校验长度（1-64 个字符）。
// 文本字段都必须是合法 UTF-8
func NormalizeGroupName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	return name, utf8.ValidString(name) && n > 0 && n <= MaxGroupNameLen
}

// ValidateDescription 验证群组描述（最多 500 个字符）
func ValidateDescription(desc string) bool {
	return utf8.ValidString(desc) && utf8.RuneCountInString(desc) <= MaxDescriptionLen
}

// ValidateCustomTitle 验证成员头衔（最多 25 个字符）
func ValidateCustomTitle(title string) bool {
	return utf8.ValidString(title) && utf8.RuneCountInString(title) <= MaxCustomTitleLen
}

// ValidateAnnouncement 验证公告内容（1-4096 个字符）
func ValidateAnnouncement(content string) bool {
	if !utf8.ValidString(content) {
		return false
	}
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	return n > 0 && utf8.RuneCountInString(content) <= MaxAnnouncementLen
}

// GenerateInviteCode 生成邀请码（20 字节随机数，base64url 编码）
func GenerateInviteCode() (string, error) {
	buf := make([]byte, InviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
