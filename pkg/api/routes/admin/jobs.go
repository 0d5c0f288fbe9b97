package admin

import (
	"github.com/valyala/fasthttp"

	"chatdesk/pkg/api/router"
	"chatdesk/pkg/api/routes/common"
	"chatdesk/pkg/logger"
)

// RunReconcile rebuilds the summary table now.
func (h *Handlers) RunReconcile(ctx *fasthttp.RequestCtx) {
	id, ok := common.RequireIdentity(ctx)
	if !ok {
		return
	}
	logger.AuditEvent("reconcile_requested", "user_id", id.UserID, "request_id", common.RequestID(ctx))
	n, err := h.Reconciler.RunOnce(ctx)
	if err != nil {
		common.Fail(ctx, "reconcile_failed", err, "Failed to rebuild summaries")
		return
	}
	_ = router.WriteJSON(ctx, ReconcileResponse{Rebuilt: n})
}
