package service

// Result 外部数据源的查询结果: 有值 / 不存在 / 失败 三种状态
type Result[T any] struct {
	Value T
	Found bool
	Err   error
}

func Found[T any](value T) Result[T] {
	return Result[T]{Value: value, Found: true}
}

func Absent[T any]() Result[T] {
	return Result[T]{}
}

func Failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

func (r Result[T]) OK() bool {
	return r.Found && r.Err == nil
}

// OrElse 不存在或失败时返回 fallback
func (r Result[T]) OrElse(fallback T) T {
	if r.OK() {
		return r.Value
	}
	return fallback
}
