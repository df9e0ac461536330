package lazydb

// Plugin is a constructed plugin instance. Plugins implement cross-cutting
// behavior purely by subscribing to the handle's Events in their
// constructor; the handle never calls back into them.
type Plugin interface {
	PluginName() string
}

// PluginFunc constructs a plugin for a handle. Runs during Open, before
// the store open is kicked off; an error leaves the handle in
// FailedToInitialize.
type PluginFunc func(db *DB) (Plugin, error)

// defaultPlugins is the plugin set used when Options.Plugins is nil.
func defaultPlugins(opt Options) map[string]PluginFunc {
	if len(opt.Crypt.Key) == 0 {
		return nil
	}
	return map[string]PluginFunc{
		CryptPluginName: CryptPlugin(opt.Crypt),
	}
}
