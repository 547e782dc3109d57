package manifest_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oasisprotocol/oasis-core-rofl/manifest"
)

func validManifest() manifest.Manifest {
	return manifest.Manifest{
		ID:      manifest.Namespace{0x01},
		Name:    "example",
		Version: "1.0.0",
		Components: []manifest.Component{
			{
				ID:        "main",
				Kind:      manifest.ComponentELF,
				Resources: manifest.Resources{Memory: 64, CPUs: 2},
				ELF:       []byte{0x7f, 'E', 'L', 'F'},
			},
		},
		Digests: map[string][32]byte{"main": {0xaa}},
	}
}

func TestValidateAcceptsWellFormedManifest(t *testing.T) {
	require.NoError(t, manifest.Validate(validManifest()))
}

func TestValidateRejectsDuplicateComponentIDs(t *testing.T) {
	m := validManifest()
	m.Components = append(m.Components, m.Components[0])
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrDuplicateComponent)
}

func TestValidateRejectsDisabledComponent(t *testing.T) {
	m := validManifest()
	m.Components[0].Disabled = true
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrComponentDisabled)
}

func TestValidateRejectsBadComponentID(t *testing.T) {
	m := validManifest()
	m.Components[0].ID = "x"
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrBadComponentID)

	m.Components[0].ID = "bad id with spaces"
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrBadComponentID)
}

func TestValidateRejectsMultiplePayloads(t *testing.T) {
	m := validManifest()
	m.Components[0].SGX = &manifest.SGXComponent{Executable: []byte{0x01}, Signature: []byte{0x02}}
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrMultiplePayloads)
}

func TestValidateRejectsMissingPayload(t *testing.T) {
	m := validManifest()
	m.Components[0].ELF = nil
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrMissingPayload)
}

func TestValidateRejectsBadResources(t *testing.T) {
	m := validManifest()
	m.Components[0].Resources.Memory = 1
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrBadResourceDescriptor)

	m2 := validManifest()
	m2.Components[0].Resources.GPU = &manifest.GpuResource{Count: 0, Model: "h100"}
	require.ErrorIs(t, manifest.Validate(m2), manifest.ErrBadResourceDescriptor)

	m3 := validManifest()
	m3.Components[0].Resources.GPU = &manifest.GpuResource{Count: 1, Model: string(make([]byte, 65))}
	require.ErrorIs(t, manifest.Validate(m3), manifest.ErrBadResourceDescriptor)
}

func TestValidateTDXRequiresFirmware(t *testing.T) {
	m := validManifest()
	m.Components[0].ELF = nil
	m.Components[0].TDX = &manifest.TDXComponent{}
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrTDXFirmwareRequired)
}

func TestValidateTDXRequiresKernelWhenStageTwoPresent(t *testing.T) {
	m := validManifest()
	m.Components[0].ELF = nil
	m.Components[0].TDX = &manifest.TDXComponent{
		Firmware:      []byte{0x01},
		StageTwoImage: []byte{0x02},
	}
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrTDXKernelRequired)

	m.Components[0].TDX.Kernel = []byte{0x03}
	m.Components[0].TDX.StageTwoFormat = manifest.StageTwoQCOW2
	require.NoError(t, manifest.Validate(m))
}

func TestValidateTDXRejectsTooManyKernelOptions(t *testing.T) {
	m := validManifest()
	m.Components[0].ELF = nil
	opts := make([]string, 33)
	m.Components[0].TDX = &manifest.TDXComponent{Firmware: []byte{0x01}, Kernel: []byte{0x02}, ExtraKernelOptions: opts}
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrTooManyKernelOpts)
}

func TestValidateTDXRejectsUnrecognizedStageTwoFormat(t *testing.T) {
	m := validManifest()
	m.Components[0].ELF = nil
	m.Components[0].TDX = &manifest.TDXComponent{
		Firmware:       []byte{0x01},
		Kernel:         []byte{0x02},
		StageTwoImage:  []byte{0x03},
		StageTwoFormat: "vhd",
	}
	require.ErrorIs(t, manifest.Validate(m), manifest.ErrBadStageTwoFormat)
}

func TestHashIsStableAcrossJSONCBORRoundTrip(t *testing.T) {
	m := validManifest()
	h1, err := manifest.Hash(m)
	require.NoError(t, err)

	j, err := manifest.EncodeJSON(m)
	require.NoError(t, err)
	fromJSON, err := manifest.DecodeJSON(j)
	require.NoError(t, err)

	c, err := manifest.EncodeCBOR(fromJSON)
	require.NoError(t, err)
	fromCBOR, err := manifest.DecodeCBOR(c)
	require.NoError(t, err)

	j2, err := manifest.EncodeJSON(fromCBOR)
	require.NoError(t, err)
	fromJSON2, err := manifest.DecodeJSON(j2)
	require.NoError(t, err)

	h2, err := manifest.Hash(fromJSON2)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestCBORRoundTripPreservesValue(t *testing.T) {
	m := validManifest()
	enc, err := manifest.EncodeCBOR(m)
	require.NoError(t, err)
	dec, err := manifest.DecodeCBOR(enc)
	require.NoError(t, err)
	require.Equal(t, m, dec)
}
