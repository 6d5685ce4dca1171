// Package core предоставляет базовые типы для всех компонентов фреймворка.
package core

// Result[T] generic тип для результатов операций (успех/ошибка)
type Result[T any] struct {
	Value T
	Error error
}

// Ok создает успешный результат
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err создает результат с ошибкой
func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

// IsOk проверяет, успешен ли результат
func (r Result[T]) IsOk() bool {
	return r.Error == nil
}

// IsErr проверяет, есть ли ошибка в результате
func (r Result[T]) IsErr() bool {
	return r.Error != nil
}

// Unpack возвращает значение и ошибку
func (r Result[T]) Unpack() (T, error) {
	return r.Value, r.Error
}

// ComponentType enum для типов компонентов
type ComponentType string

const (
	ComponentTypeModule    ComponentType = "module"
	ComponentTypeAdapter   ComponentType = "adapter"
	ComponentTypeTransport ComponentType = "transport"
	ComponentTypeHandler   ComponentType = "handler"
)
