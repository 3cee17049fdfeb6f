package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/presence/internal/middleware"
	"github.com/hitoshi/presence/internal/model"
)

// --- モック定義 ---

// mockPresenceService はPresenceServiceInterfaceのモック実装。
type mockPresenceService struct {
	employeeFn    func(ctx context.Context, userID int) (model.Records, error)
	allDaysFn     func(ctx context.Context) (map[int]string, error)
	employeesOnFn func(ctx context.Context, date model.Date) (map[int]int, error)
}

func (m *mockPresenceService) Employee(ctx context.Context, userID int) (model.Records, error) {
	return m.employeeFn(ctx, userID)
}

func (m *mockPresenceService) AllDays(ctx context.Context) (map[int]string, error) {
	return m.allDaysFn(ctx)
}

func (m *mockPresenceService) EmployeesOn(ctx context.Context, date model.Date) (map[int]int, error) {
	return m.employeesOnFn(ctx, date)
}

// mockUserDirectory はUserDirectoryのモック実装。
type mockUserDirectory struct {
	usersFn func(ctx context.Context) ([]model.User, error)
}

func (m *mockUserDirectory) Users(ctx context.Context) ([]model.User, error) {
	return m.usersFn(ctx)
}

// employee10 は従業員10の3日分の出退勤記録（火・水・木）。
func employee10() model.Records {
	return model.Records{
		{Year: 2013, Month: 9, Day: 10}: {
			Start: model.TimeOfDay{Hour: 9, Minute: 39, Second: 5},
			End:   model.TimeOfDay{Hour: 17, Minute: 59, Second: 52},
		},
		{Year: 2013, Month: 9, Day: 11}: {
			Start: model.TimeOfDay{Hour: 9, Minute: 19, Second: 52},
			End:   model.TimeOfDay{Hour: 16, Minute: 7, Second: 37},
		},
		{Year: 2013, Month: 9, Day: 12}: {
			Start: model.TimeOfDay{Hour: 10, Minute: 48, Second: 46},
			End:   model.TimeOfDay{Hour: 17, Minute: 23, Second: 51},
		},
	}
}

func newMockService() *mockPresenceService {
	return &mockPresenceService{
		employeeFn: func(ctx context.Context, userID int) (model.Records, error) {
			if userID == 10 {
				return employee10(), nil
			}
			return nil, model.NewEmployeeNotFoundError(userID)
		},
		allDaysFn: func(ctx context.Context) (map[int]string, error) {
			return map[int]string{130910: "10.09.13"}, nil
		},
		employeesOnFn: func(ctx context.Context, date model.Date) (map[int]int, error) {
			return map[int]int{10: 30047}, nil
		},
	}
}

func newMockDirectory() *mockUserDirectory {
	return &mockUserDirectory{
		usersFn: func(ctx context.Context) ([]model.User, error) {
			return []model.User{
				{ID: 141, Name: "Adam P.", Avatar: "https://intranet.stxnext.pl:443/api/images/users/141"},
			}, nil
		},
	}
}

func newTestRouter(svc PresenceServiceInterface, dir UserDirectory) http.Handler {
	return NewRouter(&RouterDeps{
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		CORSAllowedOrigin: "http://localhost:3000",
		PresenceService:   svc,
		UserDirectory:     dir,
	})
}

func doGet(t *testing.T, h http.Handler, path string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	resp := w.Result()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return resp, bytes.TrimSpace(body)
}

func assertErrorCode(t *testing.T, body []byte, want string) {
	t.Helper()

	var errBody middleware.ErrorResponseBody
	if err := json.Unmarshal(body, &errBody); err != nil {
		t.Fatalf("failed to decode error body: %v\nraw: %s", err, body)
	}
	if errBody.Code != want {
		t.Errorf("code = %q, want %q", errBody.Code, want)
	}
}

// --- テスト ---

func TestPresenceHandler_Users(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/users")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	want := `[{"user_id":141,"name":"Adam P.","avatar":"https://intranet.stxnext.pl:443/api/images/users/141"}]`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestPresenceHandler_Users_Unavailable(t *testing.T) {
	dir := &mockUserDirectory{usersFn: func(ctx context.Context) ([]model.User, error) {
		return nil, model.NewUsersUnavailableError()
	}}
	router := newTestRouter(newMockService(), dir)

	resp, body := doGet(t, router, "/api/v1/users")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	assertErrorCode(t, body, model.ErrCodeUsersUnavailable)
}

func TestPresenceHandler_MeanTimeWeekday(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/mean_time_weekday/10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	want := `[["Mon",0],["Tue",30047],["Wed",24465],["Thu",23705],["Fri",0],["Sat",0],["Sun",0]]`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestPresenceHandler_PresenceWeekday_HasHeaderRow(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/presence_weekday/10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	want := `[["Weekday","Presence (s)"],["Mon",0],["Tue",30047],["Wed",24465],["Thu",23705],["Fri",0],["Sat",0],["Sun",0]]`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestPresenceHandler_PresenceStartEnd(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/presence_start_end/10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	want := `[["Mon",0,0],["Tue",34745,64792],["Wed",33592,58057],["Thu",38926,62631],["Fri",0,0],["Sat",0,0],["Sun",0,0]]`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}
}

func TestPresenceHandler_UnknownEmployee_Returns404(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	for _, path := range []string{
		"/api/v1/mean_time_weekday/9999",
		"/api/v1/presence_weekday/9999",
		"/api/v1/presence_start_end/9999",
	} {
		t.Run(path, func(t *testing.T) {
			resp, body := doGet(t, router, path)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
			}
			assertErrorCode(t, body, model.ErrCodeEmployeeNotFound)
		})
	}
}

func TestPresenceHandler_InvalidEmployeeID_Returns400(t *testing.T) {
	svc := newMockService()
	called := false
	svc.employeeFn = func(ctx context.Context, userID int) (model.Records, error) {
		called = true
		return nil, nil
	}
	router := newTestRouter(svc, newMockDirectory())

	for _, raw := range []string{"abc", "0", "-3", "1.5"} {
		resp, body := doGet(t, router, "/api/v1/mean_time_weekday/"+raw)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("id %q: status = %d, want %d", raw, resp.StatusCode, http.StatusBadRequest)
		}
		assertErrorCode(t, body, model.ErrCodeInvalidEmployee)
	}
	if called {
		t.Error("service should not be called for an invalid id")
	}
}

func TestPresenceHandler_ServiceFailure_Returns500(t *testing.T) {
	svc := newMockService()
	svc.employeeFn = func(ctx context.Context, userID int) (model.Records, error) {
		return nil, errors.New("open runtime/data/sample_data.csv: no such file or directory")
	}
	router := newTestRouter(svc, newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/presence_weekday/10")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}
	assertErrorCode(t, body, "INTERNAL_ERROR")
}

func TestPresenceHandler_Days(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/days")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if string(body) != `{"130910":"10.09.13"}` {
		t.Errorf("body = %s", body)
	}
}

func TestPresenceHandler_Employees(t *testing.T) {
	svc := newMockService()
	var gotDate model.Date
	svc.employeesOnFn = func(ctx context.Context, date model.Date) (map[int]int, error) {
		gotDate = date
		return map[int]int{10: 30047}, nil
	}
	router := newTestRouter(svc, newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/employees/130910")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if string(body) != `{"10":30047}` {
		t.Errorf("body = %s", body)
	}
	if gotDate != (model.Date{Year: 2013, Month: 9, Day: 10}) {
		t.Errorf("date = %+v, want 2013-09-10", gotDate)
	}
}

func TestPresenceHandler_Employees_InvalidDate(t *testing.T) {
	router := newTestRouter(newMockService(), newMockDirectory())

	resp, body := doGet(t, router, "/api/v1/employees/2013-09-10")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	assertErrorCode(t, body, model.ErrCodeInvalidDate)
}

func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *model.APIError
		want int
	}{
		{model.NewEmployeeNotFoundError(1), http.StatusNotFound},
		{model.NewUsersUnavailableError(), http.StatusNotFound},
		{model.NewInvalidEmployeeError("x"), http.StatusBadRequest},
		{model.NewInvalidDateError("x"), http.StatusBadRequest},
		{&model.APIError{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapAPIErrorToHTTPStatus(tt.err); got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}
