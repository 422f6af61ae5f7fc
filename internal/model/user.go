// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Gender は利用者の性別を表す。
type Gender string

const (
	// GenderMale は男性。
	GenderMale Gender = "male"
	// GenderFemale は女性。
	GenderFemale Gender = "female"
)

// Role は利用者の所属区分を表す。
type Role string

const (
	// RoleUndergraduate は学部学生。
	RoleUndergraduate Role = "undergraduate"
	// RolePG は大学院学生。
	RolePG Role = "pg"
	// RoleFaculty は教職員。
	RoleFaculty Role = "faculty"
	// RoleAlumni は卒業生。
	RoleAlumni Role = "alumni"
)

// User は施設の利用者を表す。
// IsAdminは管理操作（チェックイン記録の削除など）の実行権限を示す。
type User struct {
	ID        string
	Name      string
	Email     string
	Gender    Gender
	Role      Role
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session は利用者のログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NormalizeGender は入力文字列をGenderに正規化する。
// 不明な値の場合は空文字列を返す。
func NormalizeGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male":
		return GenderMale
	case "female":
		return GenderFemale
	default:
		return ""
	}
}

// NormalizeRole は入力文字列をRoleに正規化する。
// 不明な値の場合は空文字列を返す。
func NormalizeRole(s string) Role {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "undergraduate", "ug":
		return RoleUndergraduate
	case "pg", "postgraduate":
		return RolePG
	case "faculty":
		return RoleFaculty
	case "alumni":
		return RoleAlumni
	default:
		return ""
	}
}
