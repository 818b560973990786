package config

import (
	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file whenever it changes and hands the new, valid
// configuration to onChange. Invalid revisions are reported through onError and
// otherwise ignored. It is a no-op when the config was not loaded from a file.
func (c *Config) Watch(onChange func(*Config), onError func(error)) {
	if c.source == nil || c.source.ConfigFileUsed() == "" {
		return
	}
	v := c.source

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		next.source = v
		onChange(next)
	})
	v.WatchConfig()
}
