// Package schema keeps the live document-store schema in line with the
// declared descriptors.
//
// The Validator compares desired mappings against live ones and decides
// which drift can be migrated automatically: new fields are appended,
// removed fields are left alone, and type changes on non-dynamic mappings
// are refused. The Manager runs the whole pipeline at startup (validate,
// create what is missing, append fields, reapply settings, install the
// retention policy) and retries it until the store converges.
package schema
