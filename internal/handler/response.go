package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/roomcal/internal/middleware"
	"github.com/hitoshi/roomcal/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeUnauthorized はセッションの主体がコンテキストにない場合の401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// writeBadBody はリクエストボディを解析できない場合の400レスポンスを書き込む。
func writeBadBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     model.ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// decodeBody はリクエストボディをJSONとして読み込む。空のボディはゼロ値として扱う。
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// プロバイダ起因のエラーは502として扱う
	switch {
	case errors.Is(err, model.ErrMalformedTimeValue):
		slog.Error("calendar provider returned malformed time", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewMalformedTimeValueError())
		return
	case errors.Is(err, model.ErrProviderUnavailable):
		slog.Error("calendar provider unavailable", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewProviderUnavailableError())
		return
	}

	// それ以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeNoCalendarSelected, model.ErrCodeInvalidDeviceSettings:
		return http.StatusBadRequest
	case model.ErrCodeCredentialsNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeCalendarNotFound, model.ErrCodeMeetingNotFound,
		model.ErrCodeDeviceNotFound, model.ErrCodeConnectionCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidMeetingWindow:
		return http.StatusConflict
	case model.ErrCodeProviderUnavailable, model.ErrCodeMalformedTimeValue:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
