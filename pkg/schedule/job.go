// Package schedule runs cron jobs under a synthesized system context: a
// job has no inbound request to parse headers from, so it gets a system
// StandardContext instead, and its outbox writes and downstream calls
// still carry a full diagnostic scope.
package schedule

import (
	"github.com/google/uuid"

	"github.com/arc-self/tracecore/pkg/ctxmodel"
)

// SystemTenantID / SystemUserID identify work the system performs on its
// own behalf rather than on behalf of an authenticated caller.
const (
	SystemTenantID = "system"
	SystemUserID   = "system-scheduler"
)

// SystemContext synthesizes the StandardContext a scheduled job runs
// under: a fresh request ID per run, the job's own name as the transaction
// type, and the system identity rather than any tenant/user. A job has no
// upstream caller, so the origin service is left empty.
func SystemContext(serviceName, jobName string) ctxmodel.StandardContext {
	sc := ctxmodel.NewStandardContext()
	sc.TenantID = SystemTenantID
	sc.UserID = SystemUserID
	return sc.WithRequestFields(uuid.NewString(), "", serviceName, jobName, "")
}
