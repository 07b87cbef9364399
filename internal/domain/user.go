// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// 用户角色常量。角色在会话期间不可变，决定允许的操作。
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
)

// User 表示应用程序中的用户（学生或教师）。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // 存储的是哈希后的密码，不能为空，永不序列化
	Name      string    `gorm:"type:varchar(191);not null" json:"name"`
	Role      string    `gorm:"type:varchar(32);not null;default:student" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// PublicProfile 是随实时事件广播的用户公开信息。
// 只包含 id、姓名和用户名，绝不携带密码等凭证。
type PublicProfile struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// Profile 返回该用户的公开信息。
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
	}
}

// IsStudent 判断用户是否为学生角色。
func (u *User) IsStudent() bool { return u.Role == RoleStudent }

// IsInstructor 判断用户是否为教师角色。
func (u *User) IsInstructor() bool { return u.Role == RoleInstructor }
