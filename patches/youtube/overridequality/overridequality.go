// Package overridequality hooks the video quality menu so the integrations can
// read the available qualities and override the selected one.
package overridequality

import (
	"fmt"

	"github.com/pgaskin/smalipatch/patches"
	"github.com/pgaskin/smalipatch/patches/youtube"
	"github.com/pgaskin/smalipatch/patches/youtube/resourceid"
	"github.com/pgaskin/smalipatch/patchlib"
	"github.com/pgaskin/smalipatch/smali"
)

// ID is the ID of the patch.
const ID = "override-quality-hook"

const (
	// VideoQualityPatch is the integrations class which receives the quality
	// list and overrides the quality.
	VideoQualityPatch = "Lapp/revanced/integrations/patches/video/VideoQualityPatch;"
	// VideoHelpers is the integrations class which holds the current quality.
	VideoHelpers = "Lapp/revanced/integrations/utils/VideoHelpers;"
)

// ListFingerprint matches the method which sets the list of qualities in the
// quality menu. The list is the second register of the interface call.
func ListFingerprint(qualityAuto int64) *patchlib.Fingerprint {
	return &patchlib.Fingerprint{
		Name:     "VideoQualityList",
		Access:   smali.AccPublic | smali.AccFinal,
		Params:   []string{"[L", "I", "Z"},
		Return:   "V",
		Opcodes:  []string{"invoke-interface"},
		Literals: []int64{qualityAuto},
		Captures: []patchlib.Capture{{Name: "list", Register: 1}},
	}
}

// PatchFingerprint matches the integrations method which overrides the
// quality.
var PatchFingerprint = &patchlib.Fingerprint{
	Name:   "VideoQualityPatch",
	Class:  VideoQualityPatch,
	Method: "overrideQuality",
	Access: smali.AccPublic | smali.AccStatic,
	Params: []string{"I"},
	Return: "V",
}

// TextFingerprint matches the lookup of the selected quality's label. The
// label is the destination of the last instruction.
var TextFingerprint = &patchlib.Fingerprint{
	Name:     "VideoQualityText",
	Access:   smali.AccPublic | smali.AccFinal,
	Params:   []string{"[L", "I", "Z"},
	Return:   "V",
	Opcodes:  []string{"if-ltz", "array-length", "if-ge", "aget-object", "iget-object"},
	Captures: []patchlib.Capture{{Name: "text", FromEnd: true, Register: 0}},
}

// Apply applies the patch.
func Apply(c *patches.Context) error {
	tb, err := resourceid.FromContext(c)
	if err != nil {
		return err
	}
	qualityAuto, err := tb.Get("string", "quality_auto")
	if err != nil {
		return err
	}
	pt := c.Patcher

	list, err := pt.Locate(ListFingerprint(qualityAuto))
	if err != nil {
		return err
	}
	qualityClass := list.Class.Name

	ctor := list.Class.FindMethod(func(m *smali.Method) bool {
		return m.Name == "<init>"
	})
	if ctor == nil {
		return fmt.Errorf("no constructor in %s", qualityClass)
	}
	override := list.Class.FindMethod(func(m *smali.Method) bool {
		return len(m.Params) != 0 && m.Params[0] == "I"
	})
	if override == nil {
		return fmt.Errorf("no quality override method in %s", qualityClass)
	}
	c.Log("quality class: %s, override method: %s\n", qualityClass, override.Name)

	r, err := pt.At(ctor, 2)
	if err != nil {
		return err
	}
	if err := pt.Apply(r, patchlib.Insert{
		Code: "sput-object p0, " + VideoQualityPatch + "->qualityClass:" + qualityClass,
	}); err != nil {
		return err
	}

	if err := pt.Apply(list, patchlib.Insert{
		Code: "invoke-static {{{list}}}, " + VideoQualityPatch + "->setVideoQualityList([Ljava/lang/Object;)V",
	}); err != nil {
		return err
	}

	r, err = pt.Locate(PatchFingerprint)
	if err != nil {
		return err
	}
	if err := pt.Apply(r,
		patchlib.AddField{
			Name:   "qualityClass",
			Type:   qualityClass,
			Access: smali.AccPublic | smali.AccStatic,
		},
		patchlib.Insert{Code: "" +
			"sget-object v0, " + VideoQualityPatch + "->qualityClass:" + qualityClass + "\n" +
			"invoke-virtual {v0, p0}, " + qualityClass + "->" + override.Name + "(I)V",
		},
	); err != nil {
		return err
	}

	r, err = pt.Locate(TextFingerprint)
	if err != nil {
		return err
	}
	return pt.Apply(r, patchlib.Insert{
		Offset: r.End - r.Start + 1,
		Code:   "sput-object {{text}}, " + VideoHelpers + "->currentQuality:Ljava/lang/String;",
	})
}

func init() {
	patches.Register(&patches.Patch{
		Info: patches.Info{
			ID:            ID,
			Name:          "Override quality hook",
			Description:   "Hooks the video quality menu for the default video quality patches.",
			Compatibility: youtube.Compatibility,
			DependsOn:     []string{resourceid.ID},
		},
		Apply: Apply,
	})
}
