package overridequality

import (
	"errors"
	"strings"
	"testing"

	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patches/youtube/resourceid"
	"github.com/pgaskin/smalipatch/patchlib"
	"github.com/pgaskin/smalipatch/workdir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMenu = `.class public final La/b/QualityMenu;
.super Ljava/lang/Object;


# instance fields
.field private listener:La/b/Listener;

.field public text:Ljava/lang/String;


# direct methods
.method public constructor <init>(La/b/Listener;)V
    .registers 2

    invoke-direct {p0}, Ljava/lang/Object;-><init>()V

    iput-object p1, p0, La/b/QualityMenu;->listener:La/b/Listener;

    return-void
.end method


# virtual methods
.method public final a(I)V
    .registers 2

    return-void
.end method

.method public final b([Ljava/lang/Object;IZ)V
    .registers 8

    const v0, 0x7f1404b4

    iget-object v3, p0, La/b/QualityMenu;->listener:La/b/Listener;

    invoke-interface {v3, p1}, La/b/Listener;->onQualities([Ljava/lang/Object;)V

    if-ltz p2, :cond_0

    array-length v1, p1

    if-ge p2, v1, :cond_0

    aget-object v1, p1, p2

    iget-object v2, v1, La/b/Quality;->label:Ljava/lang/String;

    iput-object v2, p0, La/b/QualityMenu;->text:Ljava/lang/String;

    :cond_0
    return-void
.end method
`

const testDecoy = `.class public final Lc/Decoy;
.super Ljava/lang/Object;


# virtual methods
.method public final b([Ljava/lang/Object;IZ)V
    .registers 5

    invoke-interface {p0, p1}, La/b/Listener;->onQualities([Ljava/lang/Object;)V

    return-void
.end method
`

const testVideoQualityPatch = `.class public final Lapp/revanced/integrations/patches/video/VideoQualityPatch;
.super Ljava/lang/Object;


# direct methods
.method public static overrideQuality(I)V
    .registers 2

    return-void
.end method

.method public static setVideoQualityList([Ljava/lang/Object;)V
    .registers 1

    return-void
.end method
`

const testPublic = `<?xml version="1.0" encoding="utf-8"?>
<resources>
    <public type="string" name="quality_auto" id="0x7f1404b4" />
</resources>
`

func testDir() *workdir.Dir {
	d := workdir.New()
	d.Put("smali/a/b/QualityMenu.smali", []byte(testMenu))
	d.Put("smali/c/Decoy.smali", []byte(testDecoy))
	d.Put("smali_classes2/app/revanced/integrations/patches/video/VideoQualityPatch.smali", []byte(testVideoQualityPatch))
	d.Put(resourceid.Path, []byte(testPublic))
	return d
}

func run(t *testing.T, d *workdir.Dir) (*patches.Context, error) {
	t.Helper()
	c, err := patches.NewContext(d, "com.google.android.youtube", "18.32.33")
	require.NoError(t, err)
	ps, err := patches.Resolve([]string{ID})
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, resourceid.ID, ps[0].ID)
	return c, c.Run(ps)
}

func TestApply(t *testing.T) {
	d := testDir()
	c, err := run(t, d)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Commit())

	menu, _ := d.Get("smali/a/b/QualityMenu.smali")
	vqp, _ := d.Get("smali_classes2/app/revanced/integrations/patches/video/VideoQualityPatch.smali")
	decoy, _ := d.Get("smali/c/Decoy.smali")
	assert.Equal(t, testDecoy, string(decoy))

	for _, s := range []string{
		"    iput-object p1, p0, La/b/QualityMenu;->listener:La/b/Listener;\n" +
			"    sput-object p0, Lapp/revanced/integrations/patches/video/VideoQualityPatch;->qualityClass:La/b/QualityMenu;\n" +
			"\n" +
			"    return-void\n",
		"    iget-object v3, p0, La/b/QualityMenu;->listener:La/b/Listener;\n" +
			"    invoke-static {p1}, Lapp/revanced/integrations/patches/video/VideoQualityPatch;->setVideoQualityList([Ljava/lang/Object;)V\n" +
			"\n" +
			"    invoke-interface {v3, p1}",
		"    iget-object v2, v1, La/b/Quality;->label:Ljava/lang/String;\n" +
			"    sput-object v2, Lapp/revanced/integrations/utils/VideoHelpers;->currentQuality:Ljava/lang/String;\n" +
			"\n" +
			"    iput-object v2, p0",
	} {
		assert.True(t, strings.Contains(string(menu), s), "expected QualityMenu to contain:\n%s\n\ngot:\n%s", s, menu)
	}

	for _, s := range []string{
		".field public static qualityClass:La/b/QualityMenu;\n",
		"    .registers 2\n" +
			"\n" +
			"    sget-object v0, Lapp/revanced/integrations/patches/video/VideoQualityPatch;->qualityClass:La/b/QualityMenu;\n" +
			"    invoke-virtual {v0, p0}, La/b/QualityMenu;->a(I)V\n" +
			"    return-void\n",
	} {
		assert.True(t, strings.Contains(string(vqp), s), "expected VideoQualityPatch to contain:\n%s\n\ngot:\n%s", s, vqp)
	}
}

func TestApplyMissingResource(t *testing.T) {
	d := testDir()
	d.Put(resourceid.Path, []byte(`<resources/>`))
	c, err := run(t, d)
	assert.True(t, errors.Is(err, resourceid.ErrNotFound), "unexpected error %v", err)
	assert.Equal(t, 0, c.Commit())
}

func TestApplyNotFound(t *testing.T) {
	d := testDir()
	d.Put("smali/a/b/QualityMenu.smali", []byte(strings.Replace(testMenu, "0x7f1404b4", "0x7f1404b5", 1)))
	c, err := run(t, d)
	assert.True(t, errors.Is(err, patchlib.ErrNotFound), "unexpected error %v", err)
	assert.Equal(t, 0, c.Commit())
}

func TestApplyNoOverrideMethod(t *testing.T) {
	d := testDir()
	d.Put("smali/a/b/QualityMenu.smali", []byte(strings.Replace(testMenu, ".method public final a(I)V", ".method public final a(J)V", 1)))
	_, err := run(t, d)
	assert.EqualError(t, err, "could not apply patch 'override-quality-hook': no quality override method in La/b/QualityMenu;")
}
