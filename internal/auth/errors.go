package auth

import "errors"

// ErrExchangeFailed は認可コードのトークン交換またはIDトークン検証に失敗したことを表す。
var ErrExchangeFailed = errors.New("oauth code exchange failed")
