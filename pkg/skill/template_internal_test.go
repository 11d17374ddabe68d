package skill

import "testing"

func TestResolveTemplate_SimplePath(t *testing.T) {
	bag := map[string]interface{}{"initial": map[string]interface{}{"target": "prod"}}
	got := resolveTemplate("deploy to {{initial.target}}", bag)
	if got != "deploy to prod" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveTemplate_MissingPathLeftIntact(t *testing.T) {
	bag := map[string]interface{}{"initial": map[string]interface{}{}}
	got := resolveTemplate("value is {{initial.missing}}", bag)
	if got != "value is {{initial.missing}}" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveTemplateValue_RecursesIntoMapsAndArrays(t *testing.T) {
	bag := map[string]interface{}{"initial": map[string]interface{}{"name": "alice"}}
	input := map[string]interface{}{
		"greeting": "hi {{initial.name}}",
		"tags":     []interface{}{"{{initial.name}}", "static"},
	}
	resolved := resolveTemplateValue(input, bag).(map[string]interface{})
	if resolved["greeting"] != "hi alice" {
		t.Fatalf("got %v", resolved["greeting"])
	}
	tags := resolved["tags"].([]interface{})
	if tags[0] != "alice" || tags[1] != "static" {
		t.Fatalf("got %v", tags)
	}
}
