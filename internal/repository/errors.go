package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// 条件付き更新で現在のステータスが想定と違った
	ErrStatusConflict = errors.New("status conflict")

	// ユニーク制約違反（email重複など）
	ErrDuplicate = errors.New("duplicate")

	// カートに保存できない商品IDや数量（記号入りのID、int64を超える合計など）
	ErrInvalidCartItem = errors.New("invalid cart item")
)
