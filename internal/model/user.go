package model

import "time"

// 字段长度上限（按字符计），与下方 varchar 列宽一致。
const (
	MaxNameLength  = 100
	MaxEmailLength = 191
)

// User 表示系统用户。
//
// Password 只保存 bcrypt 哈希；所有对外响应都必须先经过 Public() 转换为 PublicUser。
type User struct {
	ID        uint      `gorm:"primaryKey"`                             // 用户 ID
	Name      string    `gorm:"type:varchar(100);not null"`             // 显示名
	Email     string    `gorm:"type:varchar(191);uniqueIndex;not null"` // 邮箱（唯一，区分大小写）
	Password  string    `gorm:"not null" json:"-"`                      // bcrypt 哈希
	CreatedAt time.Time // 创建时间
	UpdatedAt time.Time // 更新时间

	Tasks []Task `gorm:"foreignKey:UserID" json:"-"`
}

// PublicUser 是用户的对外视图，结构上不包含密码字段。
type PublicUser struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public 返回去除密码哈希后的用户视图。
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
