// Package diary holds the journal entries behind the signed-in pages. Every
// read and write is scoped to the owning account; an entry that belongs to
// someone else is indistinguishable from one that does not exist.
package diary
