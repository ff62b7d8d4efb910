package assets

import "github.com/spaghettifunk/assetstream/engine/renderer/metadata"

// Loader decodes one asset file into host memory. Implementations must be
// safe for concurrent use since every job worker shares them.
type Loader interface {
	Load(path string) (*metadata.Resource, error)
}
