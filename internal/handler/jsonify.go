package handler

import (
	"net/http"

	"github.com/hitoshi/presence/internal/middleware"
)

// resultFunc はJSONにエンコードする値を返すハンドラー本体。
type resultFunc func(r *http.Request) (any, error)

// jsonify はresultFuncの戻り値をJSONレスポンスとして書き込むhttp.HandlerFuncに変換する。
// エラーの場合は統一エラーフォーマットで応答する。
func jsonify(fn resultFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := fn(r)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		if err := middleware.WriteJSON(w, http.StatusOK, result); err != nil {
			handleServiceError(w, r, err)
		}
	}
}
