package model

// User はユーザーディレクトリ（users.xml）の1エントリ。
type User struct {
	ID     int    `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
