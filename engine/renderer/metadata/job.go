package metadata

/** @brief Names the operation a job performs. */
type JobType int

const (
	/** @brief Decode a mesh from disk and prepare its device buffers. */
	JOB_TYPE_MESH_LOAD JobType = 0x02
	/** @brief Decode an image from disk and prepare its device image. */
	JOB_TYPE_TEXTURE_LOAD JobType = 0x04
)

func (t JobType) String() string {
	switch t {
	case JOB_TYPE_MESH_LOAD:
		return "mesh_load"
	case JOB_TYPE_TEXTURE_LOAD:
		return "texture_load"
	default:
		return "unknown"
	}
}

/**
 * @brief Describes a job to be run. A task carries data only; the job system
 * hands it to an executor, so it can be built and run without any workers.
 */
type JobTask struct {
	/** @brief The operation to perform. */
	Type JobType
	/** @brief The asset the job works on. */
	Handle AssetHandle
	/** @brief Source path of the asset. */
	Path string
}
