package transaction

import (
	"reflect"
	"testing"

	"github.com/ascent-project/ascent/types"
)

func TestModuleResetList(t *testing.T) {
	enabled := []types.ModulePair{
		{Name: "nodejs", Stream: "14"},
		{Name: "perl", Stream: "5.30"},
		{Name: "ruby", Stream: "2.7"},
	}
	toEnable := []types.ModulePair{
		{Name: "perl", Stream: "5.30"},
	}

	got := ModuleResetList(enabled, toEnable)
	want := []types.ModulePair{
		{Name: "nodejs", Stream: "14"},
		{Name: "ruby", Stream: "2.7"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reset list = %v, want %v", got, want)
	}
}

func TestModuleResetListDifferentStreamIsReset(t *testing.T) {
	enabled := []types.ModulePair{{Name: "nodejs", Stream: "14"}}
	toEnable := []types.ModulePair{{Name: "nodejs", Stream: "18"}}

	got := ModuleResetList(enabled, toEnable)
	if len(got) != 1 || got[0].Stream != "14" {
		t.Errorf("a module staying enabled on a different stream must still be reset, got %v", got)
	}
}

func TestModuleResetListEmpty(t *testing.T) {
	if got := ModuleResetList(nil, nil); got != nil {
		t.Errorf("reset list = %v, want nil", got)
	}
	enabled := []types.ModulePair{{Name: "perl", Stream: "5.30"}}
	if got := ModuleResetList(enabled, enabled); got != nil {
		t.Errorf("identical sets must yield nothing, got %v", got)
	}
}
