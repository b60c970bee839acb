package docker

import (
	"path/filepath"
	"regexp"

	"github.com/moby/sys/mountinfo"
)

// currentContainerIDPattern matches a full 64-character container ID, the
// form Docker and Podman both use for the per-container bind-mount
// source directory backing /etc/hostname.
var currentContainerIDPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// CurrentContainerID detects whether the calling process is itself
// running inside a container by locating the bind mount backing
// /etc/hostname and reading the container ID out of its source path.
// Grounded in the teacher's initContainerEnvInformation: both Docker and
// Podman mount /etc/hostname from a per-container file named after the
// container's own ID, so walking that mount's Root upward until a
// 64-hex-character path segment turns up recovers the ID without any
// Engine API call.
//
// Returns ("", false, nil) when not running nested (the common case on a
// developer workstation or CI runner talking to a local daemon).
func CurrentContainerID() (string, bool, error) {
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter("/etc/hostname"))
	if err != nil {
		return "", false, failedTo("detect nested container ID", err)
	}
	if len(mounts) < 1 {
		return "", false, nil
	}

	for path := mounts[0].Root; path != "" && path != "/" && path != "."; path = filepath.Dir(path) {
		if segment := filepath.Base(path); currentContainerIDPattern.MatchString(segment) {
			return segment, true, nil
		}
	}
	return "", false, nil
}
