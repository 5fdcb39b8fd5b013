package openstack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/imagedata"
	"github.com/gophercloud/gophercloud/openstack/imageservice/v2/images"
	"github.com/gophercloud/gophercloud/pagination"

	"github.com/newtron-network/sfctest/pkg/config"
	"github.com/newtron-network/sfctest/pkg/util"
)

// CreateImage uploads the image file as a public image, reusing an existing
// image of the same name.
func (c *Cloud) CreateImage(img config.Image) (string, error) {
	existing, err := c.findImage(img.Name)
	if err != nil {
		return "", err
	}
	if existing != "" {
		util.WithField("image", img.Name).Infof("Using existing image %s", existing)
		return existing, nil
	}

	f, err := os.Open(img.Path())
	if err != nil {
		return "", fmt.Errorf("openstack: image file: %w", err)
	}
	defer f.Close()

	visibility := images.ImageVisibilityPublic
	created, err := images.Create(c.Image, images.CreateOpts{
		Name:            img.Name,
		ContainerFormat: "bare",
		DiskFormat:      img.Format,
		Visibility:      &visibility,
	}).Extract()
	if err != nil {
		return "", fmt.Errorf("openstack: create image %s: %w", img.Name, err)
	}
	if err := imagedata.Upload(c.Image, created.ID, f).ExtractErr(); err != nil {
		return "", fmt.Errorf("openstack: upload image %s: %w", img.Name, err)
	}
	util.WithField("image", img.Name).Infof("Created image %s", created.ID)
	return created.ID, nil
}

func (c *Cloud) findImage(name string) (string, error) {
	var id string
	err := images.List(c.Image, images.ListOpts{Name: name}).EachPage(func(page pagination.Page) (bool, error) {
		list, err := images.ExtractImages(page)
		if err != nil {
			return false, err
		}
		if len(list) > 0 {
			id = list[0].ID
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", fmt.Errorf("openstack: list images: %w", err)
	}
	return id, nil
}

// DownloadImage fetches img.URL/img.File to img.Path() unless the file is
// already present.
func DownloadImage(ctx context.Context, img config.Image) error {
	dest := img.Path()
	if _, err := os.Stat(dest); err == nil {
		util.WithField("image", dest).Info("Image already downloaded")
		return nil
	}
	url := img.URL + "/" + img.File
	util.WithField("image", dest).Infof("Downloading %s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("openstack: download image: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("openstack: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openstack: download %s: HTTP %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("openstack: %w", err)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("openstack: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("openstack: download %s: %w", url, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("openstack: %w", err)
	}
	return os.Rename(tmp, dest)
}
