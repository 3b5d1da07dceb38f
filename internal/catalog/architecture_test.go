package catalog

import (
	"testing"

	"campreg/testutil"
)

func TestCatalogIsStandalone(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return testutil.InternalImportForbidden(ip) || testutil.DomainImportForbidden(ip)
	}, "catalog content must not depend on registration internals")
}
