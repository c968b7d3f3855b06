package errcode

// 错误码约定：返回给客户端的 error_code 字段取值。
// 仅在客户端需要按码分支处理时填充，其余错误只给 error 文案。
const (
	ResumeLimitReached = "RESUME_LIMIT_REACHED"
	MissingIcons       = "MISSING_ICONS"
	RenderFailed       = "RENDER_FAILED"
	ValidationError    = "VALIDATION_ERROR"
	NotFound           = "NOT_FOUND"
	Unauthorized       = "UNAUTHORIZED"
	Conflict           = "CONFLICT"
	RateLimited        = "RATE_LIMITED"
	InternalError      = "INTERNAL_ERROR"
)
