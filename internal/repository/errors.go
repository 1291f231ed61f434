package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicateEmail はusers.emailのユニーク制約違反を表す。
// 同一メールアドレスの同時登録レースでは片方が必ずこのエラーを観測する。
var ErrDuplicateEmail = errors.New("email already exists")

// ErrDuplicateDomain はorganizations.domainのユニーク制約違反を表す。
var ErrDuplicateDomain = errors.New("organization domain already exists")

// uniqueViolation はPostgreSQLのunique_violationエラーコード。
const uniqueViolation = "23505"

// isUniqueViolation はerrがユニーク制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
