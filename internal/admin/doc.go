// Package admin provides administrator-only principal management.
//
// # Operations
//
//   - SetRole changes a principal's role
//   - SetDisabled blocks or unblocks an account at the auth provider
//   - ListPrincipals lists principals, optionally by role
//   - AuditLog lists recent administrative actions
//
// # Authorization
//
// Every operation takes the acting principal and checks it with
// access.Admit(actor, access.RequireAdmin). A nil actor fails with
// AuthFailed; a non-admin actor fails with PermissionDenied. Admins cannot
// change their own role or disable themselves.
//
// # Audit Trail
//
// Role changes and account blocks append an entry to the audit_log
// collection in the same transaction as the change:
//
//	{actorId, action, targetId, detail}
//
// # Usage
//
//	svc := admin.NewService(records, provider, logger)
//	err := svc.SetRole(ctx, actor, targetID, access.RoleTrainer)
package admin
