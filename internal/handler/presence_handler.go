package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/presence/internal/dataset"
	"github.com/hitoshi/presence/internal/model"
	"github.com/hitoshi/presence/internal/presence"
)

// PresenceServiceInterface はPresenceHandlerが必要とするデータセット操作。
// dataset.Serviceが実装する。
type PresenceServiceInterface interface {
	// Employee は従業員の出退勤記録を返す。存在しない場合はEMPLOYEE_NOT_FOUNDを返す。
	Employee(ctx context.Context, userID int) (model.Records, error)
	// AllDays はデータセットに含まれる日付の一覧を返す。
	AllDays(ctx context.Context) (map[int]string, error)
	// EmployeesOn は指定日に出勤した従業員と在席秒数を返す。
	EmployeesOn(ctx context.Context, date model.Date) (map[int]int, error)
}

// UserDirectory はusers.xmlのユーザー一覧を返すインターフェース。
type UserDirectory interface {
	Users(ctx context.Context) ([]model.User, error)
}

// presenceWeekdayHeader はpresence_weekdayレスポンスの先頭行。
var presenceWeekdayHeader = [2]string{"Weekday", "Presence (s)"}

// PresenceHandler は在席統計APIのHTTPハンドラー。
type PresenceHandler struct {
	service PresenceServiceInterface
	users   UserDirectory
}

// NewPresenceHandler はPresenceHandlerを生成する。
func NewPresenceHandler(service PresenceServiceInterface, users UserDirectory) *PresenceHandler {
	return &PresenceHandler{
		service: service,
		users:   users,
	}
}

// Users はユーザー一覧を返す。
// GET /api/v1/users
func (h *PresenceHandler) Users(r *http.Request) (any, error) {
	return h.users.Users(r.Context())
}

// MeanTimeWeekday は曜日ごとの平均在席秒数を返す。
// GET /api/v1/mean_time_weekday/{id}
func (h *PresenceHandler) MeanTimeWeekday(r *http.Request) (any, error) {
	records, err := h.employee(r)
	if err != nil {
		return nil, err
	}
	return presence.MeanByWeekday(records), nil
}

// PresenceWeekday は曜日ごとの合計在席秒数を見出し行付きで返す。
// GET /api/v1/presence_weekday/{id}
func (h *PresenceHandler) PresenceWeekday(r *http.Request) (any, error) {
	records, err := h.employee(r)
	if err != nil {
		return nil, err
	}

	totals := presence.TotalByWeekday(records)
	rows := make([]any, 0, len(totals)+1)
	rows = append(rows, presenceWeekdayHeader)
	for _, v := range totals {
		rows = append(rows, v)
	}
	return rows, nil
}

// PresenceStartEnd は曜日ごとの平均出勤・退勤時刻（0時からの秒数）を返す。
// GET /api/v1/presence_start_end/{id}
func (h *PresenceHandler) PresenceStartEnd(r *http.Request) (any, error) {
	records, err := h.employee(r)
	if err != nil {
		return nil, err
	}
	return presence.MeanPresenceHours(records), nil
}

// Days はデータセットに含まれる日付の一覧を返す。
// GET /api/v1/days
func (h *PresenceHandler) Days(r *http.Request) (any, error) {
	return h.service.AllDays(r.Context())
}

// Employees は指定日（yymmdd）に出勤した従業員ごとの在席秒数を返す。
// GET /api/v1/employees/{date}
func (h *PresenceHandler) Employees(r *http.Request) (any, error) {
	date, err := dataset.ParseDayKey(chi.URLParam(r, "date"))
	if err != nil {
		return nil, err
	}
	return h.service.EmployeesOn(r.Context(), date)
}

// employee はURLの{id}を解釈して従業員の出退勤記録を取得する。
func (h *PresenceHandler) employee(r *http.Request) (model.Records, error) {
	raw := chi.URLParam(r, "id")
	userID, err := strconv.Atoi(raw)
	if err != nil || userID <= 0 {
		return nil, model.NewInvalidEmployeeError(raw)
	}
	return h.service.Employee(r.Context(), userID)
}
