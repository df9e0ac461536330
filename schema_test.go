package lazydb

import "testing"

func TestSchemaLookupIsCaseInsensitive(t *testing.T) {
	scm := NewSchema()
	tbl := AddTable(scm, "Users", "email")
	if scm.TableNamed("users") != tbl {
		t.Fatalf("lookup by lowercase name failed")
	}
	if scm.TableNamed("USERS") != tbl {
		t.Fatalf("lookup by uppercase name failed")
	}
	if scm.TableNamed("nope") != nil {
		t.Fatalf("unknown table should resolve to nil")
	}
}

func TestSchemaIndexed(t *testing.T) {
	scm := NewSchema()
	tbl := AddTable(scm, "users", "email")
	tbl.AddIndex("name")
	if !tbl.Indexed("email") || !tbl.Indexed("name") {
		t.Fatalf("declared indexes not reported")
	}
	if !tbl.Indexed(KeyField) {
		t.Fatalf("primary key should always count as indexed")
	}
	if tbl.Indexed("age") {
		t.Fatalf("undeclared field reported as indexed")
	}
}

func TestSchemaPanicsOnDuplicates(t *testing.T) {
	scm := NewSchema()
	tbl := AddTable(scm, "users", "email")

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("duplicate table did not panic")
			}
		}()
		AddTable(scm, "Users")
	}()

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("duplicate index did not panic")
			}
		}()
		tbl.AddIndex("email")
	}()
}
