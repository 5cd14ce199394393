package interval

import (
	"testing"
)

func TestMatchClause(t *testing.T) {
	where, args := matchClause([]Field{F("subject_id", int64(7)), F("flag", "mute")}, 2)
	if where != "subject_id = $2 AND flag = $3" {
		t.Errorf("where = %q", where)
	}
	if len(args) != 2 || args[0] != int64(7) || args[1] != "mute" {
		t.Errorf("args = %v", args)
	}
}

func TestMatchClauseEmpty(t *testing.T) {
	where, args := matchClause(nil, 1)
	if where != "TRUE" {
		t.Errorf("where = %q, want TRUE", where)
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want empty", args)
	}
}

func TestSelectColumns(t *testing.T) {
	table := Table{
		Name:        "name_history",
		OpenColumn:  "effective_from",
		CloseColumn: "effective_until",
		Columns:     []string{"subject_id", "username"},
	}
	want := "id, effective_from, effective_until, subject_id, username"
	if got := selectColumns(table); got != want {
		t.Errorf("selectColumns() = %q, want %q", got, want)
	}
}
