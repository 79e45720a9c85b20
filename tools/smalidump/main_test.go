package main

import (
	"encoding/json"
	"testing"

	"github.com/pgaskin/smalipatch/smali"
)

func TestDump(t *testing.T) {
	cls, err := smali.ParseClass("smali/a/B.smali", []byte(`.class public La/B;
.super Ljava/lang/Object;


# direct methods
.method public static c(I)Ljava/lang/String;
    .registers 2

    const v0, 0x7f1404b4

    const-string v0, "test"

    return-object v0
.end method
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	buf, err := json.Marshal(dump(cls.Methods()[0]))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exp := `{"class":"La/B;","method":"c(I)Ljava/lang/String;","access":"public static","opcodes":["const","const-string","return-object"],"strings":["test"],"literals":[2132018356]}`; string(buf) != exp {
		t.Errorf("expected %s, got %s", exp, buf)
	}
}
