package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"mangagen/internal/admission"
	"mangagen/internal/domain"
	"mangagen/internal/infra"
	"mangagen/internal/jobstore"
	"mangagen/internal/middleware"
	"mangagen/internal/runner"
	"mangagen/internal/storage"
)

// App bundles the dependencies of the HTTP surface.
type App struct {
	Store        jobstore.Store
	Gate         *admission.Gate
	Runner       *runner.Runner
	Blobs        *storage.FileStore
	Signer       *storage.Signer
	Logger       infra.Logger
	DispatchMode string
	BlobURLTTL   time.Duration
}

type errorResponse struct {
	ErrorCode string `json:"errorCode"`
	Error     string `json:"error"`
}

// Localized client-facing messages per errorCode. The detail recorded on
// the job stays technical; this is what end users see.
var errorMessages = map[string]map[string]string{
	string(domain.ErrorCodeValidation): {
		"ja": "入力内容に不備があります。URL・タイトル・概要を確認してください。",
		"en": "The request is incomplete. Check the url, title and summary fields.",
	},
	string(domain.ErrorCodeConcurrent): {
		"ja": "別の漫画を生成中です。完了までお待ちください。",
		"en": "Another manga is already being generated. Please wait for it to finish.",
	},
	string(domain.ErrorCodeRateLimited): {
		"ja": "生成サービスが混み合っています。しばらくしてからもう一度お試しください。",
		"en": "The generation service is busy. Please try again in a moment.",
	},
	string(domain.ErrorCodeTimeout): {
		"ja": "生成に時間がかかりすぎたため中断しました。もう一度お試しください。",
		"en": "Generation took too long and was stopped. Please try again.",
	},
	string(domain.ErrorCodeAPI): {
		"ja": "生成中にエラーが発生しました。もう一度お試しください。",
		"en": "Something went wrong during generation. Please try again.",
	},
	string(domain.ErrorCodeUnknown): {
		"ja": "不明なエラーが発生しました。",
		"en": "An unknown error occurred.",
	},
	"not_found": {
		"ja": "ジョブが見つかりません。期限切れで削除された可能性があります。",
		"en": "Job not found. It may have expired and been deleted.",
	},
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string) {
	locale := middleware.LocaleFromContext(r.Context())
	message := errorMessages[code][locale]
	if message == "" {
		message = errorMessages[string(domain.ErrorCodeUnknown)][locale]
	}
	a.json(w, status, errorResponse{ErrorCode: code, Error: message})
}

// localizedError returns the user-facing message for a job's recorded
// errorCode, falling back to the stored technical message.
func localizedError(job *domain.Job, locale string) string {
	if msg := errorMessages[string(job.ErrorCode)][locale]; msg != "" {
		return msg
	}
	return job.ErrorMessage
}
