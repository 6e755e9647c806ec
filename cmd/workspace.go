package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/digitalocean/go-metadata"
	"github.com/digitalocean/godo"
	"github.com/dustin/go-humanize"
	"github.com/feederco/chunked-db-backup/pkg"
)

const fileSystemForVolume = "ext4"

// scratchVolumeHeadroom is how many times the database size a scratch volume gets:
// the dump, its compressed copy and the parts all live there at once.
const scratchVolumeHeadroom = 3

// workspace is the local directory a run keeps its intermediate files in
type workspace struct {
	Dir string

	cleanup func(ctx context.Context) error
}

// Cleanup removes the workspace and everything in it
func (w *workspace) Cleanup(ctx context.Context) error {
	if w == nil || w.cleanup == nil {
		return nil
	}
	return w.cleanup(ctx)
}

// workspaceFactory creates a workspace named name
type workspaceFactory func(ctx context.Context, name string) (*workspace, error)

// localWorkspaces creates workspaces as directories under baseDir
func localWorkspaces(baseDir string) workspaceFactory {
	return func(ctx context.Context, name string) (*workspace, error) {
		return createLocalWorkspace(baseDir, name)
	}
}

func createLocalWorkspace(baseDir string, name string) (*workspace, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, pkg.NewError(pkg.KindWorkspaceFailed, "could not create workspace base directory "+baseDir, err)
	}

	dir := filepath.Join(baseDir, name)

	// Mkdir rather than MkdirAll: two runs must never share a workspace
	if err := os.Mkdir(dir, 0755); err != nil {
		return nil, pkg.NewError(pkg.KindWorkspaceFailed, "could not create workspace "+dir, err)
	}

	pkg.Log.WithField("workspace", dir).Debug("Workspace created")

	return &workspace{
		Dir: dir,
		cleanup: func(ctx context.Context) error {
			if err := os.RemoveAll(dir); err != nil {
				return pkg.NewError(pkg.KindWorkspaceFailed, "could not remove workspace "+dir, err)
			}
			pkg.Log.WithField("workspace", dir).Debug("Workspace removed")
			return nil
		},
	}, nil
}

// scratchVolumeWorkspaces creates each workspace on a new DigitalOcean volume attached to this droplet.
// The volume is destroyed on cleanup.
func scratchVolumeWorkspaces(digitalOceanClient *pkg.DigitalOceanClient, expectedSize int64) workspaceFactory {
	volumes := newScratchVolumes(digitalOceanClient)
	return func(ctx context.Context, name string) (*workspace, error) {
		return volumes.createWorkspace(ctx, name, scratchVolumeSize(expectedSize))
	}
}

// scratchVolumeSize is the volume size in GiB needed for a database of sizeInBytes
func scratchVolumeSize(sizeInBytes int64) int64 {
	const gib = 1 << 30
	needed := sizeInBytes * scratchVolumeHeadroom
	return needed/gib + 1
}

// scratchVolumeName is name in the form DigitalOcean accepts for volumes: lowercase letters, digits and '-'
func scratchVolumeName(name string) string {
	return strings.ToLower(name)
}

// scratchVolumes provisions and releases scratch volumes. The host side steps are fields so they can be
// replaced where there is no droplet to run on.
type scratchVolumes struct {
	client *pkg.DigitalOceanClient

	droplet func(ctx context.Context) (*metadata.Metadata, error)
	mount   func(ctx context.Context, volumeName string) (string, error)
	unmount func(ctx context.Context, mountPoint string) error
}

func newScratchVolumes(digitalOceanClient *pkg.DigitalOceanClient) *scratchVolumes {
	return &scratchVolumes{
		client:  digitalOceanClient,
		droplet: pkg.GetRunningInstanceData,
		mount:   pkg.MountVolume,
		unmount: pkg.UnmountVolume,
	}
}

// scratchVolume is how far provisioning of one volume got
type scratchVolume struct {
	ID         string
	DropletID  int
	MountPoint string
}

func (s *scratchVolumes) createWorkspace(ctx context.Context, name string, sizeInGb int64) (*workspace, error) {
	// - Fetch myself
	thisHost, err := s.droplet(ctx)
	if err != nil {
		return nil, pkg.NewError(pkg.KindWorkspaceFailed, "could not read droplet metadata", err)
	}

	volumeName := scratchVolumeName(name)
	volumeDescription := fmt.Sprintf("Scratch volume for database backup %s on %s.%s", name, thisHost.Region, thisHost.Hostname)

	pkg.Log.Infof("Creating volume named %s with %s capacity", volumeName, humanize.IBytes(uint64(sizeInGb)<<30))

	created, err := pkg.CreateVolume(ctx, &godo.VolumeCreateRequest{
		Region:         thisHost.Region,
		Name:           volumeName,
		Description:    volumeDescription,
		SizeGigaBytes:  sizeInGb,
		FilesystemType: fileSystemForVolume,
	}, s.client)
	if err != nil {
		return nil, pkg.NewError(pkg.KindWorkspaceFailed, "could not create volume "+volumeName, err)
	}

	pkg.Log.Infof("Volume %s created", created.ID)

	// !! From this point onward we have created things that need to be cleaned up
	volume := &scratchVolume{ID: created.ID, DropletID: thisHost.DropletID}

	fail := func(message string, cause error) (*workspace, error) {
		if releaseErr := s.release(context.WithoutCancel(ctx), volume); releaseErr != nil {
			pkg.AlertError(configStruct.Alerting, "Could not release volume "+volume.ID, releaseErr)
		}
		return nil, pkg.NewError(pkg.KindWorkspaceFailed, message, cause)
	}

	if err = pkg.AttachVolume(ctx, volume.ID, volume.DropletID, s.client); err != nil {
		return fail("could not attach volume "+volume.ID, err)
	}

	mountPoint, err := s.mount(ctx, volumeName)
	if err != nil {
		return fail("could not mount volume "+volume.ID, err)
	}
	volume.MountPoint = mountPoint

	pkg.Log.Infof("Volume %s mounted on this host under %s", volume.ID, mountPoint)

	dir := filepath.Join(mountPoint, name)
	if err = os.Mkdir(dir, 0755); err != nil {
		return fail("could not create workspace "+dir, err)
	}

	return &workspace{
		Dir: dir,
		cleanup: func(ctx context.Context) error {
			if err := os.RemoveAll(dir); err != nil {
				pkg.Log.WithError(err).Warnf("Could not empty workspace %s before destroying its volume", dir)
			}
			return s.release(ctx, volume)
		},
	}, nil
}

// release undoes every step of provisioning that happened: unmount, detach, destroy.
// A volume that is still attached cannot be destroyed, so a failed detach stops the release.
func (s *scratchVolumes) release(ctx context.Context, volume *scratchVolume) error {
	if volume.MountPoint != "" {
		if err := s.unmount(ctx, volume.MountPoint); err != nil {
			return pkg.NewError(pkg.KindWorkspaceFailed, "could not unmount volume "+volume.ID, err)
		}
		volume.MountPoint = ""
	}

	if s.isAttached(ctx, volume) {
		if err := pkg.DetachVolume(ctx, volume.ID, volume.DropletID, s.client); err != nil {
			return pkg.NewError(pkg.KindWorkspaceFailed, "could not detach volume "+volume.ID, err)
		}
	}

	if err := pkg.DestroyVolume(ctx, volume.ID, s.client); err != nil {
		return pkg.NewError(pkg.KindWorkspaceFailed, "could not destroy volume "+volume.ID, err)
	}

	pkg.Log.Infof("Volume %s destroyed", volume.ID)
	return nil
}

// isAttached asks the API whether the volume is attached to any droplet. When it can't tell, it assumes so.
func (s *scratchVolumes) isAttached(ctx context.Context, volume *scratchVolume) bool {
	current, err := pkg.FindVolume(ctx, volume.ID, s.client)
	if err != nil {
		pkg.Log.WithError(err).Warnf("Could not look up volume %s, detaching anyway", volume.ID)
		return true
	}
	return len(current.DropletIDs) > 0
}
