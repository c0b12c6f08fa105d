package blender

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/estebanfoucher/blender-renderer/internal/frame"
	"github.com/estebanfoucher/blender-renderer/internal/ply"
)

// WritePoints writes the flat (position, color) list the scene script
// reads back: one "x y z [r g b]" line per point, colors already
// normalized to [0,1].
func WritePoints(path string, cloud *ply.PointCloud) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	out := bufio.NewWriter(f)
	for i, p := range cloud.Points {
		if cloud.HasColor {
			c := cloud.Colors[i]
			_, err = fmt.Fprintf(out, "%g %g %g %g %g %g\n", p.X, p.Y, p.Z, c.R, c.G, c.B)
		} else {
			_, err = fmt.Fprintf(out, "%g %g %g\n", p.X, p.Y, p.Z)
		}
		if err != nil {
			return err
		}
	}
	return out.Flush()
}

// Script generates the Python program Blender executes for one frame:
// wipe the default scene, configure Cycles and the output, place one
// emissive sphere per point, place the camera, render one still.
//
// The camera euler is applied in Blender's XYZ mode, which composes as
// Rz·Ry·Rx and therefore matches trajectory.EulerAngles exactly.
func Script(job *frame.Job, pointsPath string) string {
	s := job.Settings
	var b strings.Builder

	fmt.Fprintf(&b, `import bpy

POINTS_FILE = %q
OUTPUT_PATH = %q
SPHERE_RADIUS = %g
SAMPLES = %d
CAMERA_POS = (%g, %g, %g)
CAMERA_ROT = (%g, %g, %g)
`,
		pointsPath, job.OutputPath, s.SphereRadius, s.Samples,
		job.Pose.Position.X, job.Pose.Position.Y, job.Pose.Position.Z,
		job.Pose.Rotation.Pitch, job.Pose.Rotation.Yaw, job.Pose.Rotation.Roll,
	)

	fmt.Fprintf(&b, `
# wipe the default scene
bpy.ops.object.select_all(action='SELECT')
bpy.ops.object.delete(use_global=False)
for material in list(bpy.data.materials):
    bpy.data.materials.remove(material)
for mesh in list(bpy.data.meshes):
    bpy.data.meshes.remove(mesh)

scene = bpy.context.scene
scene.render.engine = 'CYCLES'
scene.cycles.samples = SAMPLES
scene.render.resolution_x = %d
scene.render.resolution_y = %d
scene.render.resolution_percentage = 100
scene.render.image_settings.file_format = %q
scene.render.filepath = OUTPUT_PATH

if scene.world is None:
    scene.world = bpy.data.worlds.new('World')
scene.world.use_nodes = True
background = scene.world.node_tree.nodes['Background']
background.inputs[0].default_value = (0.0, 0.0, 0.0, 1.0)
`, s.Width, s.Height, s.FileFormat)

	b.WriteString(`
points = []
colors = []
with open(POINTS_FILE) as f:
    for line in f:
        parts = line.split()
        if len(parts) < 3:
            continue
        points.append((float(parts[0]), float(parts[1]), float(parts[2])))
        if len(parts) >= 6:
            colors.append((float(parts[3]), float(parts[4]), float(parts[5])))
        else:
            colors.append((1.0, 1.0, 1.0))

materials = {}
def material_for(color):
    key = (round(color[0], 3), round(color[1], 3), round(color[2], 3))
    mat = materials.get(key)
    if mat is None:
        mat = bpy.data.materials.new('point_%d' % len(materials))
        mat.use_nodes = True
        nodes = mat.node_tree.nodes
        nodes.clear()
        emission = nodes.new('ShaderNodeEmission')
        emission.inputs['Color'].default_value = (color[0], color[1], color[2], 1.0)
        output = nodes.new('ShaderNodeOutputMaterial')
        mat.node_tree.links.new(emission.outputs['Emission'], output.inputs['Surface'])
        materials[key] = mat
    return mat

bpy.ops.mesh.primitive_uv_sphere_add(radius=SPHERE_RADIUS, segments=8, ring_count=4)
template = bpy.context.active_object
template.data.materials.append(material_for((1.0, 1.0, 1.0)))

for i, (point, color) in enumerate(zip(points, colors)):
    if i == 0:
        obj = template
    else:
        obj = template.copy()
        bpy.context.collection.objects.link(obj)
    obj.location = point
    obj.material_slots[0].link = 'OBJECT'
    obj.material_slots[0].material = material_for(color)

camera_data = bpy.data.cameras.new('Camera')
camera = bpy.data.objects.new('Camera', camera_data)
bpy.context.collection.objects.link(camera)
camera.location = CAMERA_POS
camera.rotation_mode = 'XYZ'
camera.rotation_euler = CAMERA_ROT
scene.camera = camera

bpy.ops.render.render(write_still=True)
`)

	return b.String()
}
