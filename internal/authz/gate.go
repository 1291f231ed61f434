// Package authz はロールとドメインに基づく認可ポリシーを提供する。
// 全関数はI/Oを持たない純粋な判定関数であり、HTTPハンドラー・OAuthコールバック・
// ブートストラップが同一のロジックを共有する。
package authz

import "github.com/hitoshi/tenantry/internal/model"

// Decision は認可判定の結果を表す。
// 拒否の場合はReasonに理由を含む。
type Decision struct {
	Allowed bool
	Reason  string
}

// 拒否理由。レスポンスのエラーメッセージとしてそのまま使用する。
const (
	ReasonOnlySuperAdminCreatesSuperAdmin  = "SUPERADMINを作成できるのはSUPERADMINのみです。"
	ReasonOnlyAdminsCreateUsers            = "ユーザーを作成できるのはSUPERADMINまたはADMINのみです。"
	ReasonAdminConfinedToOwnOrganization   = "ADMINは自組織のユーザーのみ作成できます。"
	ReasonOrganizationDomainMismatch       = "組織を作成できるのは自ドメイン配下のみです。"
	ReasonOnlySuperAdminListsOrganizations = "組織一覧を参照できるのはSUPERADMINのみです。"
)

// allow は許可判定を返す。
func allow() Decision {
	return Decision{Allowed: true}
}

// deny は理由付きの拒否判定を返す。
func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// CanCreateOrganization はactorが対象ドメインの組織を作成できるかを返す。
// SUPERADMINは任意のドメイン、それ以外は自ドメインのみ作成できる。
func CanCreateOrganization(actorRole model.Role, actorDomain, targetDomain string) bool {
	return actorRole == model.RoleSuperAdmin || targetDomain == actorDomain
}

// CanCreateUser はactorが対象ロール・ドメインのユーザーを作成できるかを返す。
// 判定は以下の順で行い、最初に一致した規則が結果となる:
//  1. SUPERADMINの作成はSUPERADMINのみ
//  2. ユーザー作成自体がSUPERADMIN/ADMIN限定
//  3. ADMINは自ドメイン限定
//  4. それ以外は許可
func CanCreateUser(actorRole model.Role, actorDomain string, targetRole model.Role, targetDomain string) Decision {
	if targetRole == model.RoleSuperAdmin && actorRole != model.RoleSuperAdmin {
		return deny(ReasonOnlySuperAdminCreatesSuperAdmin)
	}
	if actorRole != model.RoleSuperAdmin && actorRole != model.RoleAdmin {
		return deny(ReasonOnlyAdminsCreateUsers)
	}
	if actorRole == model.RoleAdmin && targetDomain != actorDomain {
		return deny(ReasonAdminConfinedToOwnOrganization)
	}
	return allow()
}

// CanListOrganizations はactorが全組織の一覧を取得できるかを返す。
// SUPERADMINのみ許可する。
func CanListOrganizations(actorRole model.Role) bool {
	return actorRole == model.RoleSuperAdmin
}
