// Package pkg, projede paylaşılan utility'leri barındırır.
// Bu dosya domain-level error tanımlarını içerir.
//
// Error'lar sabit sentinel değerlerdir; service katmanı bunları
// fmt.Errorf("%w: ...") ile sarar, çağıran taraf errors.Is ile eşler:
//
//	if errors.Is(err, pkg.ErrConflict) { ... }
package pkg

import "errors"

// Domain-level error'lar.
//
// Signaling taksonomisi:
//   - ErrNotFound: bilinmeyen veya terminal durumdaki session
//   - ErrConflict: aynı çift için ikinci aktif session, ikinci cihazdan geç gelen answer
//   - ErrUnauthorized: aramanın katılımcısı olmayan kullanıcının işlemi, geçersiz token
//   - ErrTargetUnreachable: initiate anında aranan kullanıcının hiç bağlantısı yok
//
// Timeout ve ICE hataları error DEĞİLDİR; state geçişi ve bildirim üretirler.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTargetUnreachable = errors.New("target unreachable")
	ErrBadRequest        = errors.New("bad request")
	ErrRateLimited       = errors.New("rate limited")
	ErrInternal          = errors.New("internal error")
)

// WS error kodları. Client tarafı bu string'lere göre davranır.
const (
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeUnauthorized      = "unauthorized"
	CodeTargetUnreachable = "target_unreachable"
	CodeBadRequest        = "bad_request"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"
)

// ErrorCode, domain error'ını WebSocket error event'inde gönderilen koda çevirir.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrTargetUnreachable):
		return CodeTargetUnreachable
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
