// Package medal mints a victory medal NFT for the top contributor of each winning faction.
package medal

import (
	"fmt"

	zecreyface "github.com/Zecrey-Labs/zecrey-marketplace-go-sdk/sdk"
)

type Client struct {
	z            *zecreyface.Client
	nftPrefix    string
	image        string
	collectionId int64
}

// NewClient logs in to the marketplace. A zero collectionId uses the account's default collection.
func NewClient(accountName, seed, nftPrefix, image string, collectionId int64) (*Client, error) {
	z, err := zecreyface.NewClient(accountName, seed)
	if err != nil {
		return nil, fmt.Errorf("zecrey login: %w", err)
	}
	if collectionId == 0 {
		collectionId, err = zecreyface.GetDefaultCollectionId(accountName)
		if err != nil {
			return nil, fmt.Errorf("default collection: %w", err)
		}
	}
	return &Client{
		z:            z,
		nftPrefix:    nftPrefix,
		image:        image,
		collectionId: collectionId,
	}, nil
}

func (c *Client) Prefix() string {
	return c.nftPrefix
}

func (c *Client) Mint(name, description string) error {
	media, err := zecreyface.UploadMedia(c.image)
	if err != nil {
		return fmt.Errorf("upload medal image: %w", err)
	}
	_, err = c.z.MintNft(c.collectionId, "", name, description, media.PublicId, "[]", "[]", "[]")
	return err
}

// Medals lists the medals already minted into the collection.
func (c *Client) Medals() ([]*zecreyface.HauaraNftInfo, error) {
	return zecreyface.GetCollectionNftsByIregex(c.collectionId, c.nftPrefix)
}
