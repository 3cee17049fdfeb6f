// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, presence, users, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeEmployeeNotFound = "EMPLOYEE_NOT_FOUND"
	ErrCodeInvalidEmployee  = "INVALID_EMPLOYEE_ID"
	ErrCodeInvalidDate      = "INVALID_DATE"
	ErrCodeUsersUnavailable = "USERS_UNAVAILABLE"
)

// NewEmployeeNotFoundError は従業員未検出エラーを生成する。
func NewEmployeeNotFoundError(userID int) *APIError {
	return &APIError{
		Code:     ErrCodeEmployeeNotFound,
		Message:  fmt.Sprintf("指定された従業員の在席データが見つかりません: %d", userID),
		Category: "presence",
		Action:   "従業員IDを確認してください。",
	}
}

// NewInvalidEmployeeError は従業員IDが不正な場合のエラーを生成する。
func NewInvalidEmployeeError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmployee,
		Message:  fmt.Sprintf("無効な従業員IDです: %s", raw),
		Category: "validation",
		Action:   "従業員IDには正の整数を指定してください。",
	}
}

// NewInvalidDateError は日付指定が不正な場合のエラーを生成する。
func NewInvalidDateError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  fmt.Sprintf("無効な日付です: %s", raw),
		Category: "validation",
		Action:   "日付はyymmdd形式（例: 130910）で指定してください。",
	}
}

// NewUsersUnavailableError はユーザーディレクトリが読み込めない場合のエラーを生成する。
func NewUsersUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUsersUnavailable,
		Message:  "ユーザー一覧を取得できません。",
		Category: "users",
		Action:   "users.xmlの更新（update-xml）が完了しているか確認してください。",
	}
}
