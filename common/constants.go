package common

// Well-known GraphQL names used throughout composition, the transform
// pipeline, and delegation. Kept centralized so the stitching packages never
// hard-code them redundantly.
const (
	TypenameFieldName = "__typename"

	QueryObjectName = "Query"
	MutationObjectName = "Mutation"
	SubscriptionObjectName = "Subscription"
)

// IsRootObjectName reports whether name is one of the three operation root
// type names.
func IsRootObjectName(name string) bool {
	return name == QueryObjectName || name == MutationObjectName || name == SubscriptionObjectName
}

// IsBuiltinName reports whether name is an introspection meta-field or a
// specified scalar, neither of which participate in type merging.
func IsBuiltinName(name string) bool {
	switch name {
		case TypenameFieldName, "__schema", "__type", "String", "Int", "Float", "Boolean", "ID":
		return true
		default:
		return false
	}
}
