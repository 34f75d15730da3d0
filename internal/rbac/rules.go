package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:view",
		"quiz:list",
		"attempt:start",
		"attempt:save",
		"attempt:submit",
		"attempt:view-own",
		"result:view-own",
	},
	"instructor": {
		"quiz:create",
		"quiz:view",
		"quiz:list",
		"attempt:view-all",
		"result:view-all",
		"users:bulk_upsert",
		"users:list",
	},
	"admin": {
		"*", // everything
	},
}
