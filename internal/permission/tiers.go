package permission

import "github.com/OmarEhab007/wiregate/internal/domain"

// tierTable classifies every dispatchable operation into the tier used
// for the built-in role floor. Operations absent from the table (e.g.
// "ping", "auth.login") are never subject to the tier floor or the
// declarative/ACL decision; the router never sends them through the
// permission engine at all.
var tierTable = map[string]domain.OperationTier{
	// store admin
	"store.defineBucket":  domain.TierAdmin,
	"store.dropBucket":    domain.TierAdmin,
	"store.updateBucket":  domain.TierAdmin,
	"store.defineQuery":   domain.TierAdmin,
	"store.undefineQuery": domain.TierAdmin,

	// store write
	"store.insert":      domain.TierWrite,
	"store.update":      domain.TierWrite,
	"store.delete":      domain.TierWrite,
	"store.clear":       domain.TierWrite,
	"store.transaction": domain.TierWrite,

	// store read
	"store.get":             domain.TierRead,
	"store.all":             domain.TierRead,
	"store.where":           domain.TierRead,
	"store.findOne":         domain.TierRead,
	"store.count":           domain.TierRead,
	"store.first":           domain.TierRead,
	"store.last":            domain.TierRead,
	"store.paginate":        domain.TierRead,
	"store.sum":             domain.TierRead,
	"store.avg":             domain.TierRead,
	"store.min":             domain.TierRead,
	"store.max":             domain.TierRead,
	"store.subscribe":       domain.TierRead,
	"store.unsubscribe":     domain.TierRead,
	"store.stats":           domain.TierRead,
	"store.buckets":         domain.TierRead,
	"store.getBucketSchema": domain.TierRead,
	"store.listQueries":     domain.TierRead,

	// rules write
	"rules.emit":           domain.TierWrite,
	"rules.emitCorrelated": domain.TierWrite,
	"rules.setFact":        domain.TierWrite,
	"rules.deleteFact":     domain.TierWrite,

	// rules admin
	"rules.register":   domain.TierAdmin,
	"rules.unregister": domain.TierAdmin,
	"rules.update":     domain.TierAdmin,
	"rules.enable":     domain.TierAdmin,
	"rules.disable":    domain.TierAdmin,
	"rules.validate":   domain.TierAdmin,

	// rules read
	"rules.getFact":      domain.TierRead,
	"rules.queryFacts":   domain.TierRead,
	"rules.getAllFacts":  domain.TierRead,
	"rules.get":          domain.TierRead,
	"rules.list":         domain.TierRead,
	"rules.subscribe":    domain.TierRead,
	"rules.unsubscribe":  domain.TierRead,
	"rules.stats":        domain.TierRead,

	// server admin
	"server.stats":       domain.TierAdmin,
	"server.connections": domain.TierAdmin,

	// audit admin
	"audit.query": domain.TierAdmin,

	// identity admin
	"identity.createUser":     domain.TierAdmin,
	"identity.getUser":        domain.TierAdmin,
	"identity.listUsers":      domain.TierAdmin,
	"identity.updateUserRoles": domain.TierAdmin,
	"identity.deleteUser":     domain.TierAdmin,
	"identity.createRole":     domain.TierAdmin,
	"identity.deleteRole":     domain.TierAdmin,
	"identity.listRoles":      domain.TierAdmin,
	"identity.grantACL":       domain.TierAdmin,
	"identity.revokeACL":      domain.TierAdmin,
	"identity.listACL":        domain.TierAdmin,
	"identity.setOwner":       domain.TierAdmin,
	"identity.getOwner":       domain.TierAdmin,

	// identity read
	"identity.whoami": domain.TierRead,

	// session lifecycle
	"auth.logout":             domain.TierRead,
	"identity.logout":         domain.TierRead,
	"identity.refreshSession": domain.TierRead,
}

// TierOf classifies an operation. Unknown operations default to admin —
// the safest floor for an operation the table does not recognize.
func TierOf(operation string) domain.OperationTier {
	if t, ok := tierTable[operation]; ok {
		return t
	}
	return domain.TierAdmin
}
