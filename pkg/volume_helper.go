package pkg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/digitalocean/godo"
)

// VolumeSettleTime is how long to wait after attaching a volume before mounting it
var VolumeSettleTime = 30 * time.Second

const actionPollInterval = 15 * time.Second
const actionPollAttempts = 10

// FindVolume finds a DigitalOcean volume by ID
func FindVolume(ctx context.Context, id string, digitalOceanClient *DigitalOceanClient) (*godo.Volume, error) {
	volume, _, err := digitalOceanClient.Client.Storage.GetVolume(ctx, id)
	return volume, err
}

// CreateVolume creates a DigitalOcean volume
func CreateVolume(ctx context.Context, createRequest *godo.VolumeCreateRequest, digitalOceanClient *DigitalOceanClient) (*godo.Volume, error) {
	volume, _, err := digitalOceanClient.Client.Storage.CreateVolume(ctx, createRequest)
	return volume, err
}

// VolumeMountPoint is where a volume with the given name is mounted
func VolumeMountPoint(volumeName string) string {
	return "/mnt/" + strings.ReplaceAll(volumeName, "-", "_")
}

// AttachVolume attaches the volume to the droplet and waits for the action to complete
func AttachVolume(ctx context.Context, volumeID string, dropletID int, digitalOceanClient *DigitalOceanClient) error {
	action, _, err := digitalOceanClient.Client.StorageActions.Attach(ctx, volumeID, dropletID)
	if err != nil {
		return err
	}

	if action.Status == "errored" {
		return errors.New("attach action had a status of errored")
	}

	return waitForAction(ctx, action, digitalOceanClient)
}

// MountVolume mounts an attached volume once it has settled and returns the mount point.
// Nothing is left mounted when it fails.
func MountVolume(ctx context.Context, volumeName string) (string, error) {
	Log.Infof("Attached volume %s, waiting %s for it to settle", volumeName, VolumeSettleTime)
	if err := sleepContext(ctx, VolumeSettleTime); err != nil {
		return "", err
	}

	// Attached volumes show up under /dev/disk/by-id/scsi-0DO_Volume_$VOLUME_NAME
	diskLocation := "/dev/disk/by-id/scsi-0DO_Volume_" + volumeName
	mountPoint := VolumeMountPoint(volumeName)

	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return "", err
	}

	if _, err := PerformCommand(ctx, "mount", "-o", "discard,defaults,noatime", diskLocation, mountPoint); err != nil {
		if removeErr := os.Remove(mountPoint); removeErr != nil {
			Log.WithError(removeErr).Warn("Could not remove mount directory. Continuing anyway.")
		}
		return "", fmt.Errorf("could not mount %s: %w", diskLocation, err)
	}

	return mountPoint, nil
}

// UnmountVolume unmounts a volume and removes its mount point
func UnmountVolume(ctx context.Context, mountPoint string) error {
	if _, err := PerformCommand(ctx, "umount", mountPoint); err != nil {
		return err
	}

	if err := os.Remove(mountPoint); err != nil {
		Log.WithError(err).Warn("Could not remove mount directory. Continuing anyway.")
	}

	return nil
}

// DetachVolume detaches a volume from the droplet and waits for the action to complete
func DetachVolume(ctx context.Context, volumeID string, dropletID int, digitalOceanClient *DigitalOceanClient) error {
	action, _, err := digitalOceanClient.Client.StorageActions.DetachByDropletID(ctx, volumeID, dropletID)
	if err != nil {
		return err
	}

	return waitForAction(ctx, action, digitalOceanClient)
}

// DestroyVolume destroys a volume
func DestroyVolume(ctx context.Context, volumeID string, digitalOceanClient *DigitalOceanClient) error {
	_, err := digitalOceanClient.Client.Storage.DeleteVolume(ctx, volumeID)
	return err
}

func waitForAction(ctx context.Context, action *godo.Action, digitalOceanClient *DigitalOceanClient) error {
	return NewRetrier(actionPollAttempts, actionPollInterval).WithRetry(ctx, "volume action", func(int) error {
		updatedAction, _, err := digitalOceanClient.Client.Actions.Get(ctx, action.ID)
		if err != nil {
			return err
		}
		if updatedAction.Status != godo.ActionCompleted {
			return fmt.Errorf("action %d is %s", action.ID, updatedAction.Status)
		}
		return nil
	})
}

func sleepContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
