package schema

import (
	"sort"
	"strings"
)

// Grants on relations are compared as canonical text: one statement per
// (object, grantee), privileges uppercase and sorted, names schema
// qualified. The parser and the introspector both render through
// FormatGrant so the two sides of a diff agree byte for byte.

// TablePrivileges is what ALL PRIVILEGES expands to on a relation.
var TablePrivileges = []string{
	"DELETE", "INSERT", "REFERENCES", "SELECT", "TRIGGER", "TRUNCATE", "UPDATE",
}

// SequencePrivileges is what ALL PRIVILEGES expands to on a sequence.
var SequencePrivileges = []string{"SELECT", "UPDATE", "USAGE"}

// FormatGrant renders the canonical form of one grant.
func FormatGrant(objectKeyword, qualified string, privileges []string, grantee string, grantOption bool) string {
	privs := make([]string, len(privileges))
	for i, priv := range privileges {
		privs[i] = strings.ToUpper(priv)
	}
	sort.Strings(privs)
	stmt := "GRANT " + strings.Join(privs, ", ") + " ON " + objectKeyword + " " +
		qualified + " TO " + grantee
	if grantOption {
		stmt += " WITH GRANT OPTION"
	}
	return stmt + ";"
}
