package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"nudfans-backend/models"
	"nudfans-backend/utils"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/asset"
)

const previewTransformation = "e_blur:2000,q_auto:low,w_480"

// Cloudinary stores post media in a Cloudinary account. The key is the public id.
type Cloudinary struct {
	cld       *cloudinary.Cloudinary
	cloudName string
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("cloudinary credentials are not set")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("initializing cloudinary: %w", err)
	}
	cld.Config.URL.Analytics = false
	return &Cloudinary{cld: cld, cloudName: cloudName}, nil
}

// Ping checks the credentials against the admin API.
func (c *Cloudinary) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := c.cld.Admin.Ping(ctx); err != nil {
		return fmt.Errorf("cloudinary ping: %w", err)
	}
	return nil
}

func boolPointer(b bool) *bool {
	return &b
}

func resourceType(t models.MediaType) string {
	if t == models.MediaVideo {
		return "video"
	}
	return "image"
}

// deliveryURL signs the transformation together with the public id. Originals are stored
// as authenticated assets, so a URL edited to drop the blur no longer matches its signature.
func (c *Cloudinary) deliveryURL(publicID string, mediaType models.MediaType, transformation string) (string, error) {
	var (
		a   *asset.Asset
		err error
	)
	if mediaType == models.MediaVideo {
		a, err = c.cld.Video(publicID)
	} else {
		a, err = c.cld.Image(publicID)
	}
	if err != nil {
		return "", err
	}
	a.DeliveryType = api.Authenticated
	a.Config.URL.SignURL = true
	a.Transformation = transformation
	return a.String()
}

func (c *Cloudinary) Put(ctx context.Context, key string, r io.Reader, contentType string) (*Object, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	mediaType := allowedTypes[contentType]
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID:       key,
		Type:           api.Authenticated,
		Overwrite:      boolPointer(true),
		UniqueFilename: boolPointer(false),
		ResourceType:   resourceType(mediaType),
	})
	if err != nil {
		return nil, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}

	url, err := c.deliveryURL(key, mediaType, "")
	if err != nil || url == "" {
		return nil, fmt.Errorf("cloudinary upload returned no url for %s: %v", key, err)
	}
	utils.LogInfo("media uploaded to cloudinary: " + key)
	return &Object{Key: key, URL: url, Type: mediaType}, nil
}

func (c *Cloudinary) Delete(ctx context.Context, key string, mediaType models.MediaType) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     key,
		Type:         api.Authenticated,
		ResourceType: resourceType(mediaType),
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy: %s", res.Error.Message)
	}
	return nil
}

// PreviewURL derives a heavily blurred rendition from the key. Videos get a blurred poster
// frame.
func (c *Cloudinary) PreviewURL(key string, mediaType models.MediaType) string {
	publicID, transformation := key, previewTransformation
	if mediaType == models.MediaVideo {
		publicID, transformation = key+".jpg", previewTransformation+",so_0"
	}
	url, err := c.deliveryURL(publicID, mediaType, transformation)
	if err != nil {
		utils.LogError(err, "could not build preview url for "+key)
		return ""
	}
	return url
}
