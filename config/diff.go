package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ChangeType 变更类型
type ChangeType string

const (
	ChangeTypeAdded    ChangeType = "added"
	ChangeTypeModified ChangeType = "modified"
	ChangeTypeDeleted  ChangeType = "deleted"
)

// ConfigChange 单个配置项的变更
type ConfigChange struct {
	Path            string      `json:"path"` // yaml 路径，如 "refresh.signals_interval"
	Type            ChangeType  `json:"type"`
	OldValue        interface{} `json:"old_value"`
	NewValue        interface{} `json:"new_value"`
	RequiresRestart bool        `json:"requires_restart"`
}

// ConfigDiff 两份配置的差异
type ConfigDiff struct {
	Changes         []ConfigChange `json:"changes"`
	RequiresRestart bool           `json:"requires_restart"`
}

// 这些配置只在启动时读取，热更新不会生效
var restartPaths = []string{
	"system.timezone",
	"system.log_language",
	"database",
	"distributed_lock",
	"oracle",
	"web",
	"metrics",
}

// 日志中不输出明文的配置项
var secretPaths = []string{
	"oracle.api_key",
	"distributed_lock.redis.password",
	"database.dsn",
}

// DiffConfig 按 yaml 路径对比两份配置
func DiffConfig(oldConfig, newConfig *Config) *ConfigDiff {
	diff := &ConfigDiff{Changes: []ConfigChange{}}
	if oldConfig == nil || newConfig == nil {
		return diff
	}

	diff.compare(reflect.ValueOf(*oldConfig), reflect.ValueOf(*newConfig), "")

	for _, change := range diff.Changes {
		if change.RequiresRestart {
			diff.RequiresRestart = true
			break
		}
	}
	return diff
}

// HasChanges 是否存在变更
func (d *ConfigDiff) HasChanges() bool {
	return len(d.Changes) > 0
}

// RestartPaths 需要重启才能生效的变更路径
func (d *ConfigDiff) RestartPaths() []string {
	var paths []string
	for _, change := range d.Changes {
		if change.RequiresRestart {
			paths = append(paths, change.Path)
		}
	}
	return paths
}

func (c ConfigChange) String() string {
	oldValue, newValue := c.OldValue, c.NewValue
	if isSecret(c.Path) {
		oldValue, newValue = "***", "***"
	}
	switch c.Type {
	case ChangeTypeAdded:
		return fmt.Sprintf("%s: + %v", c.Path, newValue)
	case ChangeTypeDeleted:
		return fmt.Sprintf("%s: - %v", c.Path, oldValue)
	default:
		return fmt.Sprintf("%s: %v -> %v", c.Path, oldValue, newValue)
	}
}

func (d *ConfigDiff) compare(oldVal, newVal reflect.Value, path string) {
	switch oldVal.Kind() {
	case reflect.Struct:
		d.compareStruct(oldVal, newVal, path)
	case reflect.Map:
		d.compareMap(oldVal, newVal, path)
	default:
		if !reflect.DeepEqual(oldVal.Interface(), newVal.Interface()) {
			d.addChange(path, ChangeTypeModified, oldVal.Interface(), newVal.Interface())
		}
	}
}

func (d *ConfigDiff) compareStruct(oldVal, newVal reflect.Value, basePath string) {
	typ := oldVal.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		name := strings.Split(field.Tag.Get("yaml"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		d.compare(oldVal.Field(i), newVal.Field(i), joinPath(basePath, name))
	}
}

// map 键排序后对比，保证输出顺序稳定
func (d *ConfigDiff) compareMap(oldVal, newVal reflect.Value, basePath string) {
	keys := map[string]reflect.Value{}
	for _, k := range oldVal.MapKeys() {
		keys[fmt.Sprint(k.Interface())] = k
	}
	for _, k := range newVal.MapKeys() {
		keys[fmt.Sprint(k.Interface())] = k
	}
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := keys[name]
		path := joinPath(basePath, name)
		oldItem := oldVal.MapIndex(key)
		newItem := newVal.MapIndex(key)
		switch {
		case !newItem.IsValid():
			d.addChange(path, ChangeTypeDeleted, oldItem.Interface(), nil)
		case !oldItem.IsValid():
			d.addChange(path, ChangeTypeAdded, nil, newItem.Interface())
		default:
			d.compare(oldItem, newItem, path)
		}
	}
}

func (d *ConfigDiff) addChange(path string, changeType ChangeType, oldValue, newValue interface{}) {
	d.Changes = append(d.Changes, ConfigChange{
		Path:            path,
		Type:            changeType,
		OldValue:        oldValue,
		NewValue:        newValue,
		RequiresRestart: matchesPrefix(path, restartPaths),
	})
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

func isSecret(path string) bool {
	return matchesPrefix(path, secretPaths)
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if path == p || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}
