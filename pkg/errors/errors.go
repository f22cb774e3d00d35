package errors

import (
	"fmt"
	"strings"
	"time"
)

// Category represents a user-facing failure category
type Category string

const (
	// CategoryTimeout represents a connect/read timeout against Torob
	CategoryTimeout Category = "connection-timeout"
	// CategoryNetwork represents a generic transport failure
	CategoryNetwork Category = "network-error"
	// CategoryForbidden represents an HTTP 403 or an explicit block
	CategoryForbidden Category = "access-forbidden"
	// CategoryNotFound represents a missing page or no product match
	CategoryNotFound Category = "not-found"
	// CategoryRateLimited represents an upstream HTTP 429
	CategoryRateLimited Category = "rate-limited"
	// CategoryThrottled represents a self-imposed rejection by the burst
	// detector. Kept distinct from CategoryRateLimited so the detector's own
	// rejections never feed back into its failure scan.
	CategoryThrottled Category = "request-throttled"
	// CategoryServer represents an HTTP 5xx from Torob
	CategoryServer Category = "server-error"
	// CategoryTLS represents a certificate/TLS handshake failure
	CategoryTLS Category = "tls-error"
	// CategoryParse represents an extraction failure on a well-formed response
	CategoryParse Category = "parse-error"
	// CategoryEmptyResponse represents a 200 with an empty body
	CategoryEmptyResponse Category = "empty-response"
	// CategoryInvalidInput represents a rejected query before any network activity
	CategoryInvalidInput Category = "invalid-input"
	// CategoryDisabled represents the master switch being off
	CategoryDisabled Category = "disabled"
	// CategoryUnknown is the generic fallback
	CategoryUnknown Category = "unknown"
)

// userMessages maps each category to its Persian user-facing message
var userMessages = map[Category]string{
	CategoryTimeout:       "خطا در اتصال به ترب: زمان پاسخگویی به پایان رسید",
	CategoryNetwork:       "خطای شبکه در ارتباط با ترب",
	CategoryForbidden:     "دسترسی به ترب مسدود شده است",
	CategoryNotFound:      "محصول در ترب یافت نشد",
	CategoryRateLimited:   "تعداد درخواست‌ها بیش از حد مجاز است",
	CategoryThrottled:     "تعداد درخواست‌ها بیش از حد مجاز است",
	CategoryServer:        "خطای سرور ترب",
	CategoryTLS:           "خطای گواهینامه امنیتی در اتصال به ترب",
	CategoryParse:         "خطا در پردازش اطلاعات دریافتی از ترب",
	CategoryEmptyResponse: "پاسخ خالی از سرور ترب دریافت شد",
	CategoryInvalidInput:  "نام محصول نامعتبر است",
	CategoryDisabled:      "جستجوی قیمت غیرفعال است",
	CategoryUnknown:       "خطای ناشناخته در جستجوی ترب",
}

// Message returns the Persian user-facing message for the category
func (c Category) Message() string {
	if msg, ok := userMessages[c]; ok {
		return msg
	}
	return userMessages[CategoryUnknown]
}

// Critical reports whether repeated failures of this category should
// invalidate a product's cache entry
func (c Category) Critical() bool {
	switch c {
	case CategoryForbidden, CategoryRateLimited, CategoryServer, CategoryParse:
		return true
	}
	return false
}

// classifierRule pairs a category with the keywords that select it. Order
// matters: timeout before generic network, 403 before generic HTTP.
type classifierRule struct {
	category Category
	keywords []string
}

var classifierRules = []classifierRule{
	{CategoryTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CategoryNetwork, []string{"connection refused", "connection reset", "no such host", "network is unreachable", "broken pipe", "eof"}},
	{CategoryForbidden, []string{"403", "forbidden", "blocked"}},
	{CategoryNotFound, []string{"404", "not found"}},
	{CategoryRateLimited, []string{"429", "too many requests", "rate limit"}},
	{CategoryServer, []string{"500", "502", "503", "504", "server error", "bad gateway"}},
	{CategoryTLS, []string{"tls", "x509", "certificate", "ssl"}},
	{CategoryParse, []string{"parse", "extract", "unreadable"}},
}

// Classify maps a raw transport/HTTP/parsing error message to a failure
// category using ordered case-insensitive substring matching
func Classify(raw string) Category {
	lowered := strings.ToLower(raw)
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.category
			}
		}
	}
	return CategoryUnknown
}

// UserMessage returns the message shown to callers for a raw error string.
// Messages already in the target locale pass through untouched.
func UserMessage(raw string) string {
	if ContainsPersian(raw) {
		return raw
	}
	return Classify(raw).Message()
}

// ContainsPersian reports whether s contains characters from the Arabic
// Unicode block used by Persian text
func ContainsPersian(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

// ScrapeError represents a classified scrape failure
type ScrapeError struct {
	Category Category
	Message  string // user-facing, target locale
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}

// Unwrap returns the underlying error
func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// LogMessage returns the message persisted to the search log. The category
// code is kept in front of the localized text so the burst detector can match
// transport-exhaustion signatures on it.
func (e *ScrapeError) LogMessage() string {
	return string(e.Category) + ": " + e.Message
}

// New creates a ScrapeError with the category's default user message
func New(category Category, err error) *ScrapeError {
	return &ScrapeError{
		Category: category,
		Message:  category.Message(),
		Err:      err,
		Time:     time.Now(),
	}
}

// NewWithMessage creates a ScrapeError with an explicit user message
func NewWithMessage(category Category, message string, err error) *ScrapeError {
	return &ScrapeError{
		Category: category,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// FromRaw classifies a raw error and wraps it as a ScrapeError
func FromRaw(err error) *ScrapeError {
	raw := err.Error()
	category := Classify(raw)
	message := category.Message()
	if ContainsPersian(raw) {
		message = raw
	}
	return NewWithMessage(category, message, err)
}

// AsScrapeError returns err as a *ScrapeError, classifying it first when it
// is any other error type
func AsScrapeError(err error) *ScrapeError {
	if err == nil {
		return nil
	}
	if se, ok := err.(*ScrapeError); ok {
		return se
	}
	return FromRaw(err)
}
