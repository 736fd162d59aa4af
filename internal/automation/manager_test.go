//go:build !no_automation

package automation

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "scripts"))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestManagerSaveAndGet(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{
		Meta:    ScriptMeta{Name: "Close Join Window", Description: "after first join", Enabled: true},
		LuaCode: `ncp.on("device_joined", function() ncp.permit_join(0) end)`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if saved.ID != "close_join_window" {
		t.Errorf("id: got %q, want close_join_window", saved.ID)
	}

	got, err := m.Get(saved.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Meta != saved.Meta {
		t.Errorf("meta: got %+v, want %+v", got.Meta, saved.Meta)
	}
	if !strings.Contains(got.LuaCode, `ncp.permit_join(0)`) {
		t.Errorf("lua_code: got %q", got.LuaCode)
	}
}

func TestManagerSaveExistingID(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{ID: "my_script", Meta: ScriptMeta{Name: "My Script"}, LuaCode: `ncp.log("v1")`})
	if err != nil {
		t.Fatal(err)
	}
	saved.LuaCode = `ncp.log("v2")`
	if _, err := m.Save(saved); err != nil {
		t.Fatal(err)
	}

	got, err := m.Get("my_script")
	if err != nil {
		t.Fatal(err)
	}
	if got.LuaCode != "ncp.log(\"v2\")\n" {
		t.Errorf("lua_code after update: got %q", got.LuaCode)
	}
}

func TestManagerListSorted(t *testing.T) {
	m := newTestManager(t)

	for _, name := range []string{"Gamma", "Alpha", "Beta"} {
		if _, err := m.Save(&Script{Meta: ScriptMeta{Name: name}, LuaCode: `ncp.log("` + name + `")`}); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(m.Dir(), "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	scripts, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, s := range scripts {
		ids = append(ids, s.ID)
	}
	if strings.Join(ids, ",") != "alpha,beta,gamma" {
		t.Errorf("ids: got %v, want [alpha beta gamma]", ids)
	}
}

func TestManagerDelete(t *testing.T) {
	m := newTestManager(t)

	saved, err := m.Save(&Script{Meta: ScriptMeta{Name: "ToDelete"}, LuaCode: `ncp.log("bye")`})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(saved.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(saved.ID); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("get after delete: got %v, want fs.ErrNotExist", err)
	}
}

func TestManagerInvalidID(t *testing.T) {
	m := newTestManager(t)

	for _, id := range []string{"", "..", "../etc/passwd", `a\b`} {
		if _, err := m.Get(id); err == nil {
			t.Errorf("Get(%q): expected error", id)
		}
		if err := m.Delete(id); err == nil {
			t.Errorf("Delete(%q): expected error", id)
		}
	}
	if _, err := m.Save(&Script{ID: "../x"}); err == nil {
		t.Error("Save with traversal id: expected error")
	}
}

func TestManagerUniqueID(t *testing.T) {
	m := newTestManager(t)

	s1, err := m.Save(&Script{Meta: ScriptMeta{Name: "Dup"}})
	if err != nil {
		t.Fatal(err)
	}
	s2, err := m.Save(&Script{Meta: ScriptMeta{Name: "Dup"}})
	if err != nil {
		t.Fatal(err)
	}
	if s1.ID != "dup" || s2.ID != "dup_1" {
		t.Errorf("ids: got %q and %q, want dup and dup_1", s1.ID, s2.ID)
	}
}

func TestParseScriptFile(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		file     string
		content  string
		wantMeta ScriptMeta
		wantCode string
	}{
		{
			name: "with metadata",
			file: "alerts.lua",
			content: `-- {"name":"Link Alerts","description":"log link loss","enabled":true}

ncp.on("link_down", function(ev) ncp.log(ev.error) end)
`,
			wantMeta: ScriptMeta{Name: "Link Alerts", Description: "log link loss", Enabled: true},
			wantCode: "ncp.on(\"link_down\", function(ev) ncp.log(ev.error) end)\n",
		},
		{
			name:     "plain lua",
			file:     "plain.lua",
			content:  "ncp.log(\"hi\")\n",
			wantMeta: ScriptMeta{Name: "plain", Enabled: true},
			wantCode: "ncp.log(\"hi\")\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			s, err := parseFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if want := strings.TrimSuffix(tt.file, ".lua"); s.ID != want {
				t.Errorf("id: got %q, want %q", s.ID, want)
			}
			if s.Meta != tt.wantMeta {
				t.Errorf("meta: got %+v, want %+v", s.Meta, tt.wantMeta)
			}
			if s.LuaCode != tt.wantCode {
				t.Errorf("lua_code: got %q, want %q", s.LuaCode, tt.wantCode)
			}
		})
	}
}

func TestSerializeScript(t *testing.T) {
	got := serializeScript(&Script{
		ID:      "test",
		Meta:    ScriptMeta{Name: "Test", Enabled: true},
		LuaCode: `ncp.log("hi")`,
	})
	want := "-- {\"name\":\"Test\",\"enabled\":true}\n\nncp.log(\"hi\")\n"
	if got != want {
		t.Errorf("serializeScript: got %q, want %q", got, want)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Bathroom Light", "bathroom_light"},
		{"hello world!", "hello_world"},
		{"", ""},
		{"  spaces  ", "spaces"},
		{"UPPER", "upper"},
	}
	for _, tt := range tests {
		if got := slugify(tt.input); got != tt.want {
			t.Errorf("slugify(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}
