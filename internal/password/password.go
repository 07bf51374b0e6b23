// Package password はパスワードのハッシュ化と検証を提供する。
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch はパスワードが保存済みハッシュと一致しないことを表す。
var ErrMismatch = errors.New("password does not match")

// Verify は平文パスワードをbcrypt保存済みハッシュと照合する。
// bcryptの比較は定数時間で行われるため、タイミング攻撃に対して安全。
// 不一致の場合はErrMismatchを返す。
func Verify(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err != nil {
		return ErrMismatch
	}
	return nil
}

// Hash は平文パスワードをbcryptでハッシュ化する。
// 管理者フローやテストフィクスチャの作成で使用する。
func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}
